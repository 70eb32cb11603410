// Package opds implements the OPDS Catalog 1.2 feed types used to publish
// search results to e-reader clients.
// OPDS (Open Publication Distribution System) is an Atom-based catalog format
// for distributing digital publications.
//
// Specification: https://specs.opds.io/opds-1.2
package opds

import (
	"encoding/xml"
	"time"
)

const (
	// Namespaces
	NSAtom       = "http://www.w3.org/2005/Atom"
	NSDC         = "http://purl.org/dc/terms/"
	NSOpenSearch = "http://a9.com/-/spec/opensearch/1.1/"

	// OPDS relation types
	RelCover     = "http://opds-spec.org/image"
	RelThumbnail = "http://opds-spec.org/image/thumbnail"
	RelAlternate = "alternate"
	RelSelf      = "self"
	RelStart     = "start"
	RelSearch    = "search"
	RelFirst     = "first"
	RelLast      = "last"
	RelNext      = "next"
	RelPrevious  = "previous"

	// MIME types
	MIMEAtomFeed        = "application/atom+xml"
	MIMEAcquisitionFeed = "application/atom+xml;profile=opds-catalog;kind=acquisition"
	MIMEOpenSearchDesc  = "application/opensearchdescription+xml"
	MIMEHTML            = "text/html"
)

// Feed represents an OPDS Atom acquisition feed.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Xmlns   string   `xml:"xmlns,attr"`
	XmlnsDC string   `xml:"xmlns:dc,attr,omitempty"`
	XmlnsOS string   `xml:"xmlns:opensearch,attr,omitempty"`

	ID      string   `xml:"id"`
	Title   Text     `xml:"title"`
	Updated AtomDate `xml:"updated"`
	Author  *Author  `xml:"author,omitempty"`

	// OpenSearch response elements, set on search result feeds.
	TotalResults int `xml:"opensearch:totalResults,omitempty"`
	ItemsPerPage int `xml:"opensearch:itemsPerPage,omitempty"`
	StartIndex   int `xml:"opensearch:startIndex,omitempty"`

	Links   []Link  `xml:"link"`
	Entries []Entry `xml:"entry"`
}

// NewAcquisitionFeed creates a new acquisition feed with standard namespaces.
func NewAcquisitionFeed(id, title string) *Feed {
	return &Feed{
		Xmlns:   NSAtom,
		XmlnsDC: NSDC,
		XmlnsOS: NSOpenSearch,
		ID:      id,
		Title:   Text{Value: title},
		Updated: AtomDate{Time: time.Now()},
	}
}

// Text represents an Atom text element with optional type attribute.
type Text struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Author represents the author of a feed or entry.
type Author struct {
	Name string `xml:"name"`
	URI  string `xml:"uri,omitempty"`
}

// AtomDate wraps time.Time for RFC 3339 XML serialization.
type AtomDate struct {
	Time time.Time
}

func (d AtomDate) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(d.Time.UTC().Format(time.RFC3339), start)
}

func (d *AtomDate) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Link represents an Atom link element.
type Link struct {
	Rel   string `xml:"rel,attr,omitempty"`
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr,omitempty"`
	Title string `xml:"title,attr,omitempty"`
}

// Category represents an Atom category element.
type Category struct {
	Term  string `xml:"term,attr"`
	Label string `xml:"label,attr,omitempty"`
}

// Entry represents a single publication in an acquisition feed.
type Entry struct {
	ID         string     `xml:"id"`
	Title      Text       `xml:"title"`
	Updated    AtomDate   `xml:"updated"`
	Summary    *Text      `xml:"summary,omitempty"`
	Authors    []Author   `xml:"author,omitempty"`
	Categories []Category `xml:"category,omitempty"`

	// Dublin Core metadata
	Identifier string `xml:"dc:identifier,omitempty"`
	Publisher  string `xml:"dc:publisher,omitempty"`
	Issued     string `xml:"dc:issued,omitempty"`

	Links []Link `xml:"link"`
}

// AddLink appends a link to the feed.
func (f *Feed) AddLink(rel, href, mimeType string) {
	f.Links = append(f.Links, Link{Rel: rel, Href: href, Type: mimeType})
}

// AddEntry appends an entry to the feed.
func (f *Feed) AddEntry(e Entry) {
	f.Entries = append(f.Entries, e)
}

// MarshalToXML serializes the feed to XML bytes with a proper XML declaration.
func (f *Feed) MarshalToXML() ([]byte, error) {
	data, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

// OpenSearchDescription is the document that tells OPDS clients how to
// build search URLs.
type OpenSearchDescription struct {
	XMLName     xml.Name      `xml:"OpenSearchDescription"`
	Xmlns       string        `xml:"xmlns,attr"`
	ShortName   string        `xml:"ShortName"`
	Description string        `xml:"Description"`
	URL         OpenSearchURL `xml:"Url"`
}

// OpenSearchURL is a search URL template.
type OpenSearchURL struct {
	Type     string `xml:"type,attr"`
	Template string `xml:"template,attr"`
}

// NewOpenSearchDescription returns a description whose template points at tmpl.
func NewOpenSearchDescription(shortName, description, tmpl string) OpenSearchDescription {
	return OpenSearchDescription{
		Xmlns:       NSOpenSearch,
		ShortName:   shortName,
		Description: description,
		URL:         OpenSearchURL{Type: MIMEAcquisitionFeed, Template: tmpl},
	}
}

// MarshalToXML serializes the description with an XML declaration.
func (d OpenSearchDescription) MarshalToXML() ([]byte, error) {
	data, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}
