package notification

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/request"
)

// requestTypeLabels are the human names used in subject-facing mail.
var requestTypeLabels = map[request.Type]string{
	request.TypeDataExport:            "data export",
	request.TypeDataErasure:           "data erasure",
	request.TypeDataAccess:            "data access",
	request.TypeDataRectification:     "data rectification",
	request.TypeProcessingRestriction: "processing restriction",
	request.TypeDataPortability:       "data portability",
}

func typeLabel(t request.Type) string {
	if label, ok := requestTypeLabels[t]; ok {
		return label
	}
	return strings.ToLower(string(t))
}

func createdMail(r *request.Request) (subject, body string) {
	label := typeLabel(r.Type)
	subject = fmt.Sprintf("We received your %s request", label)
	body = fmt.Sprintf(`<p>Hello,</p>
<p>We have received your %s request and will respond by <strong>%s</strong>.</p>
<p>Reference: %s</p>`,
		html.EscapeString(label),
		r.DeadlineAt.Format("January 2, 2006"),
		r.ID)
	return subject, body
}

func completedMail(r *request.Request) (subject, body string) {
	label := typeLabel(r.Type)
	subject = fmt.Sprintf("Your %s request is complete", label)
	var sb strings.Builder
	fmt.Fprintf(&sb, `<p>Hello,</p>
<p>Your %s request has been completed.</p>`, html.EscapeString(label))
	if r.ResultFileURL != "" {
		fmt.Fprintf(&sb, `<p>Your export is ready: <a href="%s">download</a></p>`,
			html.EscapeString(r.ResultFileURL))
	}
	fmt.Fprintf(&sb, `<p>Reference: %s</p>`, r.ID)
	return subject, sb.String()
}

func rejectedMail(r *request.Request) (subject, body string) {
	label := typeLabel(r.Type)
	subject = fmt.Sprintf("Your %s request was declined", label)
	body = fmt.Sprintf(`<p>Hello,</p>
<p>Your %s request could not be fulfilled.</p>
<p>Reason: %s</p>
<p>Reference: %s</p>`,
		html.EscapeString(label),
		html.EscapeString(r.RejectionReason),
		r.ID)
	return subject, body
}

func overdueDigest(overdue []*request.Request) (subject, body string) {
	subject = fmt.Sprintf("GDPR compliance alert: %d overdue request(s)", len(overdue))
	var sb strings.Builder
	sb.WriteString(`<p>The following data subject requests are past their statutory deadline:</p>
<table border="1" cellpadding="4">
<tr><th>ID</th><th>Subject</th><th>Type</th><th>Days overdue</th><th>Status</th></tr>
`)
	for _, r := range overdue {
		fmt.Fprintf(&sb, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>\n",
			r.ID,
			html.EscapeString(r.SubjectEmail.String()),
			r.Type,
			r.DaysOverdue(),
			r.Status)
	}
	sb.WriteString("</table>")
	return subject, sb.String()
}

func expiringConsentMail(c *consent.Consent, expiresAt time.Time) (subject, body string) {
	subject = "Your consent is about to expire"
	body = fmt.Sprintf(`<p>Hello,</p>
<p>Your %s consent expires on <strong>%s</strong>.</p>
<p>If you wish to continue, please renew your consent before that date. No
action is needed to let it lapse.</p>`,
		html.EscapeString(strings.ToLower(string(c.Type))),
		expiresAt.Format("January 2, 2006"))
	return subject, body
}
