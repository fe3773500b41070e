package notify

import (
	"strings"
	"time"

	"github.com/jwalitptl/reminder-api/internal/model"
)

// displayLayout renders the fire time the way the reminder list shows it.
const displayLayout = "2006/1/2 15:04:05"

// Message is the shared notification text. Channels that carry a single
// text field use Text; push services that have a separate title use the
// two parts.
type Message struct {
	Title string
	Body  string
}

func (m Message) Text() string {
	return m.Title + "\n\n" + m.Body
}

// Format builds the message for r, rendering the fire time in loc. The time
// is the stored occurrence; after a month-end clamp the scheduler job is moved
// to that day, so it matches the day the callback arrives.
func Format(r *model.Reminder, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString(r.Content)
	b.WriteString("\n\n⏰ Time: ")
	b.WriteString(r.RemindTime.In(loc).Format(displayLayout))
	b.WriteString("\n\n📅 Cycle: ")
	b.WriteString(r.CycleType.Label())
	if r.HasLink() {
		b.WriteString("\n\n🔗 Link: ")
		b.WriteString(*r.Link)
	}

	return Message{
		Title: "🔔 Reminder: " + r.Title,
		Body:  b.String(),
	}
}
