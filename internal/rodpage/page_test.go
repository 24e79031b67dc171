package rodpage

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/loop"
	"github.com/hazyhaar/optsync/session"
)

func newTestPage() (*Page, *loop.Manual) {
	m := loop.NewManual()
	return newPage(nil, m, nil), m
}

func TestReceive_EventDeliveredOnLoop(t *testing.T) {
	p, m := newTestPage()
	var got *dom.Event
	p.listeners["l1"] = func(ev *dom.Event) { got = ev }

	p.receive([]byte(`{"kind":"event","lid":"l1","type":"click","target":"n7"}`))
	if got != nil {
		t.Fatal("listener ran before the loop")
	}
	m.RunPending()
	if got == nil {
		t.Fatal("listener not called")
	}
	if got.Type != "click" || got.Target.ID() != "n7" {
		t.Fatalf("event: got type %q target %q", got.Type, got.Target.ID())
	}
}

func TestReceive_UnknownListenerIgnored(t *testing.T) {
	p, m := newTestPage()
	p.receive([]byte(`{"kind":"event","lid":"gone","type":"change","target":"n1"}`))
	m.RunPending()
}

func TestReceive_MutationRecords(t *testing.T) {
	p, m := newTestPage()
	var got []dom.MutationRecord
	p.observers["o3"] = func(recs []dom.MutationRecord) { got = recs }

	p.receive([]byte(`{"kind":"mutation","oid":"o3","records":[
		{"type":"childList","target":"n2","added":["n9"],"removed":["n4","n5"]},
		{"type":"characterData","target":""}
	]}`))
	m.RunPending()

	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2", len(got))
	}
	ids := func(els []dom.Element) []string {
		out := []string{}
		for _, e := range els {
			out = append(out, e.ID())
		}
		return out
	}
	r := got[0]
	if r.Type != dom.ChildList || r.Target.ID() != "n2" {
		t.Fatalf("record 0: got %+v", r)
	}
	if diff := cmp.Diff([]string{"n9"}, ids(r.Added)); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"n4", "n5"}, ids(r.Removed)); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if got[1].Target != nil {
		t.Errorf("empty target should be nil, got %v", got[1].Target)
	}
}

func TestReceive_PageLoaded(t *testing.T) {
	p, m := newTestPage()
	var got []session.Page
	p.OnPageLoaded(func(pg session.Page) { got = append(got, pg) })

	p.receive([]byte(`{"kind":"page","page":{"type":"PRODUCT","productId":793363376}}`))
	p.receive([]byte(`{"kind":"page","page":{"type":"CATEGORY","productId":0}}`))
	m.RunPending()

	want := []session.Page{{Type: "PRODUCT", ProductID: 793363376}, {Type: "CATEGORY"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
}

func TestReceive_BadPayloadDropped(t *testing.T) {
	p, m := newTestPage()
	p.receive([]byte(`{not json`))
	if m.Pending() != 0 {
		t.Fatalf("pending: got %d, want 0", m.Pending())
	}
}

func TestObserver_SecondDisconnectSkipsBridge(t *testing.T) {
	p, _ := newTestPage()
	o := &observer{p: p, oid: "o1"}
	// Already forgotten: Disconnect must not reach the (nil) tab.
	o.Disconnect()
}

func TestElemNilForEmptyID(t *testing.T) {
	p, _ := newTestPage()
	if p.elem("") != nil {
		t.Fatal("empty id wrapped")
	}
}

func TestBridgeScript(t *testing.T) {
	for _, want := range []string{BindingName, "data-optsync-id", "Ecwid.OnPageLoaded", "Ecwid.Cart.addProduct",
		"(success, product, cart, error)", "new WeakRef(n)"} {
		if !strings.Contains(Bridge, want) {
			t.Errorf("bridge missing %q", want)
		}
	}
}

func TestAddResult_Outcome(t *testing.T) {
	cases := []struct {
		raw     string
		wantOK  bool
		wantErr string
	}{
		{`{"ok":true,"error":""}`, true, ""},
		{`{"ok":false,"error":""}`, false, ""},
		{`{"ok":false,"error":"Product is out of stock"}`, false, "Product is out of stock"},
		{`{"ok":false}`, false, ""},
	}
	for _, c := range cases {
		var r addResult
		if err := json.Unmarshal([]byte(c.raw), &r); err != nil {
			t.Fatalf("%s: %v", c.raw, err)
		}
		ok, err := r.outcome()
		if ok != c.wantOK {
			t.Errorf("%s: ok got %v, want %v", c.raw, ok, c.wantOK)
		}
		gotErr := ""
		if err != nil {
			gotErr = err.Error()
		}
		if gotErr != c.wantErr {
			t.Errorf("%s: error got %q, want %q", c.raw, gotErr, c.wantErr)
		}
	}
}
