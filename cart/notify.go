package cart

import (
	"time"

	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/loop"
)

// NoticeDuration is how long a validation notice and the button shake last.
const NoticeDuration = 3 * time.Second

// NoticeID is the element id of the validation notice.
const NoticeID = "optsync-notice"

const noticeStyle = "position: fixed; top: 50%; left: 50%; transform: translate(-50%, -50%); " +
	"background: #ff4444; color: white; padding: 20px; border-radius: 5px; z-index: 1000; " +
	"box-shadow: 0 2px 10px rgba(0,0,0,0.2); text-align: center"

// Notifier gives the user feedback on a blocked submission.
type Notifier interface {
	// Notice shows msg and dismisses it after d.
	Notice(msg string, d time.Duration)
	// Shake animates el for d.
	Shake(el dom.Element, d time.Duration)
}

// PageNotifier renders feedback into the page itself.
type PageNotifier struct {
	doc   dom.Document
	sched loop.Scheduler
}

// NewPageNotifier returns a Notifier drawing into doc.
func NewPageNotifier(doc dom.Document, sched loop.Scheduler) *PageNotifier {
	return &PageNotifier{doc: doc, sched: sched}
}

func (n *PageNotifier) Notice(msg string, d time.Duration) {
	body := n.doc.Body()
	if body == nil {
		return
	}
	if old := n.doc.QuerySelector("#" + NoticeID); old != nil {
		old.Remove()
	}
	el := n.doc.CreateElement("div")
	el.SetAttr("id", NoticeID)
	el.SetAttr("style", noticeStyle)
	el.SetText(msg)
	body.AppendChild(el)
	n.sched.After(d, el.Remove)
}

func (n *PageNotifier) Shake(el dom.Element, d time.Duration) {
	el.SetStyle("animation", "shake-cart-button 0.5s")
	el.SetStyle("animation-iteration-count", "1")
	n.sched.After(d, func() {
		el.SetStyle("animation", "")
		el.SetStyle("animation-iteration-count", "")
	})
}
