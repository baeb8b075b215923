package productsfeed

import (
	"bytes"
	"encoding/xml"
)

// GoogleNamespace is the namespace of the g: elements.
const GoogleNamespace = "http://base.google.com/ns/1.0"

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	NSG     string     `xml:"xmlns:g,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Items       []Item `xml:"item"`
}

// FeedInfo describes the channel element of a feed.
type FeedInfo struct {
	Title       string
	Link        string
	Description string
}

// RenderRSS encodes items as an RSS 2.0 document with the Google namespace.
func RenderRSS(info FeedInfo, items []Item) ([]byte, error) {
	doc := rss{
		Version: "2.0",
		NSG:     GoogleNamespace,
		Channel: rssChannel{
			Title:       info.Title,
			Link:        info.Link,
			Description: info.Description,
			Items:       items,
		},
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
