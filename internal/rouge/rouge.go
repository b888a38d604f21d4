// Package rouge ties the image composition engine together: the image
// catalogue of a configuration file, entry tree construction and the
// build entry point used by the CLI and by build-graph generators.
package rouge

import (
	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/entries"
	"github.com/xen-troops/rouge/internal/image"
	"github.com/xen-troops/rouge/internal/tools"
)

// Image is one buildable image from the configuration catalogue.
type Image struct {
	Name string
	Desc string
	Node *config.Node
}

// AvailableImages returns the images declared under the "images" mapping of
// the configuration root.
func AvailableImages(root *config.Node) ([]Image, error) {
	imagesNode, err := root.Get("images")
	if err != nil || imagesNode == nil {
		return nil, err
	}
	pairs, err := imagesNode.Pairs()
	if err != nil {
		return nil, err
	}
	images := make([]Image, 0, len(pairs))
	for _, pair := range pairs {
		desc, err := pair.Value.GetString("desc", "No description available")
		if err != nil {
			return nil, err
		}
		images = append(images, Image{Name: pair.Key, Desc: desc, Node: pair.Value})
	}
	return images, nil
}

// FindImage looks an image up by name.
func FindImage(root *config.Node, name string) (*Image, error) {
	images, err := AvailableImages(root)
	if err != nil {
		return nil, err
	}
	for i := range images {
		if images[i].Name == name {
			return &images[i], nil
		}
	}
	return nil, config.NewError(root.Location(), "no image %q in the configuration", name)
}

// factory builds the entry factory for the given settings.
func (s *Settings) factory(runner tools.Runner) *entries.Factory {
	if runner == nil {
		runner = tools.NewExecRunner(s.Tools)
	}
	return &entries.Factory{
		Runner:    runner,
		Alignment: s.Alignment,
		Reserve:   s.GPTReserve,
	}
}

// Build composes the image into outputPath.
func (s *Settings) Build(img *Image, outputPath string, opts image.Options) error {
	root, err := s.factory(nil).New(img.Node)
	if err != nil {
		return err
	}
	return image.Assemble(root, outputPath, opts)
}

// Deps lists the source files the image depends on. It is a pure function
// of the configuration: no file is stat'ed or read, so build-graph
// generators can call it before any input exists.
func (s *Settings) Deps(img *Image) ([]string, error) {
	root, err := s.factory(nil).New(img.Node)
	if err != nil {
		return nil, err
	}
	return root.Deps(), nil
}
