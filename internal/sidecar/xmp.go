package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// XMP namespaces
const (
	nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsXMP = "http://ns.adobe.com/xap/1.0/"
	nsDC  = "http://purl.org/dc/elements/1.1/"
)

// ErrCorrupt is returned for an existing sidecar that cannot be parsed.
// Such files are left untouched.
var ErrCorrupt = errors.New("corrupt sidecar")

const template = `<?xml version="1.0" encoding="UTF-8"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="photocull">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    xmlns:dc="http://purl.org/dc/elements/1.1/">
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>`

// SidecarPath returns the sidecar for a photo: photo.jpg -> photo.xmp
func SidecarPath(photo string) string {
	return strings.TrimSuffix(photo, filepath.Ext(photo)) + ".xmp"
}

// UpdateXMP applies d to the sidecar at path, creating it if missing. Only
// keywords under KeywordPrefix are synchronised. The file is written only
// when something changed, and the return value reports whether it was.
func UpdateXMP(path string, d Decision) (bool, error) {
	doc := etree.NewDocument()
	if _, err := os.Stat(path); err == nil {
		if err := doc.ReadFromFile(path); err != nil || doc.Root() == nil {
			return false, fmt.Errorf("%w: %s", ErrCorrupt, path)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := doc.ReadFromString(template); err != nil {
			return false, fmt.Errorf("failed to parse template: %w", err)
		}
	} else {
		return false, fmt.Errorf("failed to stat sidecar: %w", err)
	}

	desc := description(doc.Root())

	changed := setRating(desc, d.Rating)
	if d.Label != "" && setProperty(desc, nsXMP, "xmp", "Label", d.Label, true) {
		changed = true
	}
	if syncKeywords(desc, d.Keywords) {
		changed = true
	}

	if !changed {
		return false, nil
	}
	if err := doc.WriteToFile(path); err != nil {
		return false, fmt.Errorf("failed to write sidecar: %w", err)
	}
	return true, nil
}

// description finds or creates x:xmpmeta/rdf:RDF/rdf:Description
func description(root *etree.Element) *etree.Element {
	rdf := root
	if !(root.Tag == "RDF" && root.NamespaceURI() == nsRDF) {
		rdf = child(root, nsRDF, "RDF")
		if rdf == nil {
			rdf = root.CreateElement(qualify(root, nsRDF, "rdf", "RDF"))
		}
	}
	desc := child(rdf, nsRDF, "Description")
	if desc == nil {
		desc = rdf.CreateElement(qualify(rdf, nsRDF, "rdf", "Description"))
		desc.CreateAttr(qualify(desc, nsRDF, "rdf", "about"), "")
	}
	return desc
}

func setRating(desc *etree.Element, rating int) bool {
	rating = max(0, min(5, rating))
	return setProperty(desc, nsXMP, "xmp", "Rating", strconv.Itoa(rating), rating != 0)
}

// setProperty sets a simple property stored either as an attribute or as a
// child element of desc. A missing property is created only when create is set.
func setProperty(desc *etree.Element, uri, prefix, name, value string, create bool) bool {
	for i := range desc.Attr {
		a := &desc.Attr[i]
		if a.Key == name && a.NamespaceURI() == uri {
			if a.Value == value {
				return false
			}
			a.Value = value
			return true
		}
	}

	if el := child(desc, uri, name); el != nil {
		if el.Text() == value {
			return false
		}
		el.SetText(value)
		return true
	}

	if !create {
		return false
	}
	desc.CreateElement(qualify(desc, uri, prefix, name)).SetText(value)
	return true
}

// syncKeywords makes the AI/ entries of dc:subject equal to the AI/ entries
// of keywords, removing duplicates and leaving user keywords alone
func syncKeywords(desc *etree.Element, keywords []string) bool {
	desired := make(map[string]bool)
	for _, kw := range keywords {
		if strings.HasPrefix(kw, KeywordPrefix) {
			desired[kw] = true
		}
	}

	changed := false
	subject := child(desc, nsDC, "subject")
	var bag *etree.Element
	if subject != nil {
		bag = child(subject, nsRDF, "Bag")
	}
	if bag == nil {
		if len(desired) == 0 {
			return false
		}
		if subject == nil {
			subject = desc.CreateElement(qualify(desc, nsDC, "dc", "subject"))
		}
		bag = subject.CreateElement(qualify(subject, nsRDF, "rdf", "Bag"))
		changed = true
	}

	existing := make(map[string]bool)
	for _, li := range children(bag, nsRDF, "li") {
		text := li.Text()
		if !strings.HasPrefix(text, KeywordPrefix) {
			existing[text] = true
			continue
		}
		if existing[text] || !desired[text] {
			bag.RemoveChild(li)
			changed = true
			continue
		}
		existing[text] = true
	}

	missing := make([]string, 0, len(desired))
	for kw := range desired {
		if !existing[kw] {
			missing = append(missing, kw)
		}
	}
	sort.Strings(missing)
	for _, kw := range missing {
		bag.CreateElement(qualify(bag, nsRDF, "rdf", "li")).SetText(kw)
		changed = true
	}
	return changed
}

func child(parent *etree.Element, uri, tag string) *etree.Element {
	for _, el := range parent.ChildElements() {
		if el.Tag == tag && el.NamespaceURI() == uri {
			return el
		}
	}
	return nil
}

func children(parent *etree.Element, uri, tag string) []*etree.Element {
	var out []*etree.Element
	for _, el := range parent.ChildElements() {
		if el.Tag == tag && el.NamespaceURI() == uri {
			out = append(out, el)
		}
	}
	return out
}

// qualify returns prefix:name for uri as seen from el, declaring the
// preferred prefix on el when no ancestor binds uri
func qualify(el *etree.Element, uri, preferred, name string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space == "xmlns" && a.Value == uri {
				return a.Key + ":" + name
			}
		}
	}
	el.CreateAttr("xmlns:"+preferred, uri)
	return preferred + ":" + name
}
