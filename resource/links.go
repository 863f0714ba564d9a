package resource

// Link is one entry of an object's "links" list.
type Link struct {
	Rel    string
	Href   string
	Method string
}

// Links returns the object's link relations. Malformed entries are skipped.
func (o *Object) Links() []Link {
	list, ok := o.fields["links"].(*List)
	if !ok {
		return nil
	}
	var ret []Link
	for _, item := range list.Objects() {
		rel, _ := item.fields["rel"].(string)
		href, _ := item.fields["href"].(string)
		if rel == "" || href == "" {
			continue
		}
		method, _ := item.fields["method"].(string)
		ret = append(ret, Link{Rel: rel, Href: href, Method: method})
	}
	return ret
}

// Link returns the link with the given relation name.
func (o *Object) Link(rel string) (Link, bool) {
	return o.linkFor(InternalName(rel))
}

func (o *Object) linkFor(internalName string) (Link, bool) {
	for _, l := range o.Links() {
		if InternalName(l.Rel) == internalName {
			return l, true
		}
	}
	return Link{}, false
}
