package resilience

// Disconnecter is an active watcher.
type Disconnecter interface {
	Disconnect()
}

// ObserverSet holds the one price observer and one structural observer of a
// session. Installing a new one always disconnects its predecessor.
type ObserverSet struct {
	price      Disconnecter
	structural Disconnecter
}

// SetPrice installs o as the price observer.
func (s *ObserverSet) SetPrice(o Disconnecter) {
	if s.price != nil && s.price != o {
		s.price.Disconnect()
	}
	s.price = o
}

// SetStructural installs o as the structural observer.
func (s *ObserverSet) SetStructural(o Disconnecter) {
	if s.structural != nil && s.structural != o {
		s.structural.Disconnect()
	}
	s.structural = o
}

// Price returns the installed price observer, or nil.
func (s *ObserverSet) Price() Disconnecter { return s.price }

// Structural returns the installed structural observer, or nil.
func (s *ObserverSet) Structural() Disconnecter { return s.structural }

// DisconnectAll tears both observers down.
func (s *ObserverSet) DisconnectAll() {
	if s.price != nil {
		s.price.Disconnect()
		s.price = nil
	}
	if s.structural != nil {
		s.structural.Disconnect()
		s.structural = nil
	}
}
