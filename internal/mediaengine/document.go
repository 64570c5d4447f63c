/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest describes a clip in YAML (or JSON). It is accepted both as a
// pushed document and as a .yaml file on disk.
type Manifest struct {
	Title      string            `yaml:"title,omitempty"`
	Resource   string            `yaml:"resource"`
	Length     int               `yaml:"length,omitempty"`
	Duration   string            `yaml:"duration,omitempty"`
	FPS        float64           `yaml:"fps,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// EncodeManifest renders p as a YAML manifest that DecodeDocument accepts.
// It is how an opened producer crosses the wire to another server.
func EncodeManifest(p Producer) ([]byte, error) {
	m := Manifest{
		Title:    p.Title(),
		Resource: p.Resource(),
		Length:   p.Length(),
		FPS:      p.FPS(),
	}
	if props := p.Properties().Map(); len(props) > 0 {
		delete(props, "title")
		delete(props, "resource")
		if len(props) > 0 {
			m.Properties = props
		}
	}
	out, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return out, nil
}

// xmlDocument is the subset of an MLT XML document the engine understands.
type xmlDocument struct {
	XMLName   xml.Name      `xml:"mlt"`
	Title     string        `xml:"title,attr"`
	Producers []xmlProducer `xml:"producer"`
	Playlists []xmlPlaylist `xml:"playlist"`
}

type xmlProducer struct {
	ID         string        `xml:"id,attr"`
	In         string        `xml:"in,attr"`
	Out        string        `xml:"out,attr"`
	Properties []xmlProperty `xml:"property"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlPlaylist struct {
	ID      string     `xml:"id,attr"`
	Entries []xmlEntry `xml:"entry"`
	Blanks  []xmlBlank `xml:"blank"`
}

type xmlEntry struct {
	Producer string `xml:"producer,attr"`
	In       string `xml:"in,attr"`
	Out      string `xml:"out,attr"`
}

type xmlBlank struct {
	Length string `xml:"length,attr"`
}

func (p xmlProducer) property(name string) string {
	for _, prop := range p.Properties {
		if prop.Name == name {
			return strings.TrimSpace(prop.Value)
		}
	}
	return ""
}

// DecodeDocument builds a clip from an XML or YAML document. fps is used
// when the document does not carry a rate of its own.
func DecodeDocument(doc []byte, fps float64) (*Clip, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrOpen)
	}
	if trimmed[0] == '<' {
		return decodeXML(trimmed, fps)
	}
	var m Manifest
	if err := yaml.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return m.clip("yaml-string", fps)
}

func (m Manifest) clip(fallbackResource string, fps float64) (*Clip, error) {
	if m.FPS > 0 {
		fps = m.FPS
	}
	length := m.Length
	if length <= 0 && m.Duration != "" {
		d, err := time.ParseDuration(m.Duration)
		if err != nil {
			return nil, fmt.Errorf("%w: duration %q: %v", ErrOpen, m.Duration, err)
		}
		length = framesFor(d, fps)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: manifest has no length", ErrOpen)
	}
	resource := m.Resource
	if resource == "" {
		resource = fallbackResource
	}
	c := NewClip(resource, length, fps)
	c.props.Inherit(m.Properties)
	if m.Title != "" {
		c.props.Set("title", m.Title)
	}
	return c, nil
}

func decodeXML(doc []byte, fps float64) (*Clip, error) {
	var d xmlDocument
	if err := xml.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	producers := make(map[string]xmlProducer, len(d.Producers))
	for _, p := range d.Producers {
		producers[p.ID] = p
	}

	length := 0
	for _, pl := range d.Playlists {
		for _, e := range pl.Entries {
			p := producers[e.Producer]
			in := atoiDefault(e.In, atoiDefault(p.In, 0))
			out := atoiDefault(e.Out, atoiDefault(p.Out, p.length()-1))
			if out >= in {
				length += out - in + 1
			}
		}
		for _, b := range pl.Blanks {
			length += atoiDefault(b.Length, 0)
		}
	}
	if length == 0 && len(d.Producers) > 0 {
		length = d.Producers[0].length()
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: document has no playable length", ErrOpen)
	}

	resource := "xml-string"
	title := d.Title
	if len(d.Producers) > 0 {
		first := d.Producers[0]
		if len(d.Playlists) == 0 {
			if r := first.property("resource"); r != "" {
				resource = r
			}
		}
		if title == "" {
			title = first.property("title")
		}
		if r, err := strconv.ParseFloat(first.property("meta.media.frame_rate"), 64); err == nil && r > 0 {
			fps = r
		}
	}

	c := NewClip(resource, length, fps)
	if title != "" {
		c.props.Set("title", title)
	}
	return c, nil
}

func (p xmlProducer) length() int {
	if n := atoiDefault(p.property("length"), 0); n > 0 {
		return n
	}
	if out := atoiDefault(p.Out, -1); out >= 0 {
		return out + 1
	}
	return 0
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func framesFor(d time.Duration, fps float64) int {
	return int(math.Ceil(d.Seconds() * fps))
}
