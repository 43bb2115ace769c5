package dispatch

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/models"
)

const (
	defaultRecipientName = "Member"
	expiryDateLayout     = "2/1/2006"
)

// TemplateContext is the fixed set of values a channel template may reference.
// Placeholders are written as {name}, {plan_name}, {expiry_date} and so on.
type TemplateContext struct {
	Name          string
	Email         string
	Phone         string
	PlanName      string
	ExpiryDate    time.Time
	DaysLeft      int
	PaymentLink   string
	GroupLink     string
	CourseLink    string
	DashboardLink string
}

// NewTemplateContext builds the context for one recipient of a rule on itemID.
func NewTemplateContext(subject *models.Subject, itemID string, links config.Links, now time.Time) TemplateContext {
	tc := TemplateContext{
		Name:          subject.Profile.Name,
		Email:         subject.Profile.Email,
		Phone:         subject.Profile.Phone,
		PlanName:      subject.ItemTitle,
		ExpiryDate:    subject.Deadline,
		PaymentLink:   links.Payment,
		GroupLink:     links.Group,
		CourseLink:    links.Course,
		DashboardLink: links.Dashboard,
	}
	if tc.Name == "" {
		tc.Name = defaultRecipientName
	}
	if tc.GroupLink == "" {
		tc.GroupLink = "#"
	}
	if links.Payment != "" && itemID != "" {
		if joined, err := url.JoinPath(links.Payment, itemID); err == nil {
			tc.PaymentLink = joined
		}
	}
	if !subject.Deadline.IsZero() {
		tc.DaysLeft = int(math.Ceil(subject.Deadline.Sub(now).Hours() / 24))
	}
	return tc
}

func (c TemplateContext) replacer() *strings.Replacer {
	expiry := ""
	if !c.ExpiryDate.IsZero() {
		expiry = c.ExpiryDate.Format(expiryDateLayout)
	}
	return strings.NewReplacer(
		"{name}", c.Name,
		"{email}", c.Email,
		"{phone}", c.Phone,
		"{plan_name}", c.PlanName,
		"{item_title}", c.PlanName,
		"{expiry_date}", expiry,
		"{days_left}", strconv.Itoa(c.DaysLeft),
		"{payment_link}", c.PaymentLink,
		"{group_link}", c.GroupLink,
		"{course_link}", c.CourseLink,
		"{dashboard_link}", c.DashboardLink,
	)
}

// Render substitutes every known placeholder in s. Unknown placeholders are left as is.
func (c TemplateContext) Render(s string) string {
	if s == "" {
		return s
	}
	return c.replacer().Replace(s)
}

// RenderRule renders each channel template of the rule independently.
func RenderRule(rule *models.ReminderRule, subject *models.Subject, tc TemplateContext) *Message {
	r := tc.replacer()
	render := func(s string) string {
		if s == "" {
			return s
		}
		return r.Replace(s)
	}

	msg := &Message{
		UserId:    subject.UserId,
		SourceId:  rule.Id,
		Recipient: subject.Profile,
		Email: models.EmailContent{
			Subject: render(rule.Email.Subject),
			Body:    render(rule.Email.Body),
			CTA:     render(rule.Email.CTA),
			CTALink: render(rule.Email.CTALink),
		},
		Push: models.PushContent{
			Title: render(rule.Push.Title),
			Body:  render(rule.Push.Body),
			Link:  render(rule.Push.Link),
		},
		InApp: models.InAppContent{
			Title: render(rule.InApp.Title),
			Body:  render(rule.InApp.Body),
			Link:  render(rule.InApp.Link),
		},
		Chat: models.ChatContent{
			Message: render(rule.Chat.Message),
			CTA:     render(rule.Chat.CTA),
			CTALink: render(rule.Chat.CTALink),
		},
	}
	if msg.Push.Title == "" {
		msg.Push.Title = rule.Title
	}
	if msg.Push.Body == "" {
		msg.Push.Body = msg.Email.Body
	}
	if msg.InApp.Title == "" {
		msg.InApp.Title = rule.Title
	}
	return msg
}
