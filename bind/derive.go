package bind

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/optstate"
)

// Derive reads every option currently in the page into s, in catalog order.
// Options whose widget is missing stay unset.
func Derive(doc dom.Document, p *catalog.Product, s *optstate.Store) error {
	var errs []error
	for i := range p.Options {
		o := &p.Options[i]
		v, ok := readOption(doc, o)
		if !ok {
			continue
		}
		if _, err := s.SetOption(o.Name, v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("bind: derive product %d: %w", p.ID, errors.Join(errs...))
	}
	return nil
}

// readOption returns the live value of o. Radio groups without a checked
// input fall back to the option default when the group is present.
func readOption(doc dom.Document, o *catalog.Option) (string, bool) {
	if el := doc.QuerySelector(o.Locator); el != nil {
		return el.Value(), true
	}
	if o.Kind == catalog.KindRadio && o.Default != "" && doc.QuerySelector(o.Container) != nil {
		return o.Default, true
	}
	return "", false
}
