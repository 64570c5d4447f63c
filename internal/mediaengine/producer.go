/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

// Clip is the producer handed out by the in-process engine.
type Clip struct {
	resource string
	length   int
	fps      float64
	props    *Properties
}

// NewClip builds a producer with a fixed length. A title, when wanted, is
// carried in the "title" property.
func NewClip(resource string, length int, fps float64) *Clip {
	return &Clip{
		resource: resource,
		length:   length,
		fps:      fps,
		props:    NewProperties(),
	}
}

func (c *Clip) Resource() string { return c.resource }

func (c *Clip) Title() string {
	title, _ := c.props.Get("title")
	return title
}

func (c *Clip) Length() int { return c.length }

func (c *Clip) FPS() float64 { return c.fps }

func (c *Clip) Properties() *Properties { return c.props }
