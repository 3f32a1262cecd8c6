package main

import (
	"context"
	"errors"
	"fmt"
)

// actionSpec is the registry entry for one Action variant: what the button
// says, what the overlay shows, and which executor capability a press runs.
type actionSpec struct {
	Label string

	// Display renders the informational line shown under the button.
	Display func(a Action) string

	// Run invokes the external handler. The dispatcher recovers panics.
	Run func(ctx context.Context, d *Dispatcher, a Action) error

	// Success and Failure render the status message text.
	Success func(a Action) string
	Failure func(a Action) string

	// Infallible handlers always report Success; their errors are only logged.
	Infallible bool
}

func constText(s string) func(Action) string {
	return func(Action) string { return s }
}

var errIncompleteGeo = errors.New("geo payload has no longitude")

var actionRegistry = map[ActionKind]actionSpec{
	KindWifiJoin: {
		Label: "Connect to Wi-Fi",
		Display: func(a Action) string {
			return "SSID: " + a.(WifiJoin).SSID
		},
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.JoinWifi(ctx, a.(WifiJoin))
		},
		Success: func(a Action) string { return fmt.Sprintf("Connected to %s.", a.(WifiJoin).SSID) },
		Failure: func(a Action) string { return fmt.Sprintf("Failed to connect to %s.", a.(WifiJoin).SSID) },
	},
	KindContact: {
		Label:   "Save Contact",
		Display: constText("Contact Information Detected"),
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.SaveAndOpen(ctx, a.(Contact).VCard, ".vcf")
		},
		Success: constText("Contact saved."),
		Failure: constText("Failed to save contact."),
	},
	KindCalendarEvent: {
		Label:   "Save Event",
		Display: constText("Event Information Detected"),
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.SaveAndOpen(ctx, a.(CalendarEvent).ICal, ".ics")
		},
		Success: constText("Event saved."),
		Failure: constText("Failed to save event."),
	},
	KindEmail: {
		Label:   "Send Email",
		Display: constText("Email Address Detected"),
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.OpenURL(ctx, a.(Email).MailtoURI)
		},
		Success: constText("Opening email client."),
		Failure: constText("Failed to send email."),
	},
	KindSMS: {
		Label:   "Send SMS",
		Display: constText("SMS Information Detected"),
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			s := a.(SMS)
			return d.exec.ComposeSMS(ctx, s.Phone, s.Message)
		},
		Success: constText("Opening SMS application."),
		Failure: constText("Failed to send SMS."),
	},
	KindGeo: {
		Label:   "Open Map",
		Display: constText("Geolocation Detected"),
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			g := a.(Geo)
			if !g.Complete() {
				return errIncompleteGeo
			}
			return d.exec.OpenURL(ctx, d.mapsURL(g))
		},
		Success: constText("Opening location in map."),
		Failure: constText("Failed to open location."),
	},
	KindSocialProfile: {
		Label:   "Open Profile",
		Display: constText("Social Media Profile Detected"),
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.OpenURL(ctx, a.(SocialProfile).URL)
		},
		Success:    constText("Opening social media profile..."),
		Infallible: true,
	},
	KindLink: {
		Label: "Go to Link",
		Display: func(a Action) string {
			return "Link: " + a.(Link).URL
		},
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.OpenURL(ctx, a.(Link).URL)
		},
		Success:    constText("Opening link..."),
		Infallible: true,
	},
	KindPlainText: {
		Label: "Copy Text",
		Display: func(a Action) string {
			return "Text: " + a.(PlainText).Text
		},
		Run: func(ctx context.Context, d *Dispatcher, a Action) error {
			return d.exec.CopyText(ctx, a.(PlainText).Text)
		},
		Success:    constText("Text copied to clipboard."),
		Infallible: true,
	},
}

const noActionDisplay = "No QR code detected"

// buttonLabel returns the label for the button bound to a.
func buttonLabel(a Action) string {
	spec, ok := actionRegistry[kindOf(a)]
	if !ok {
		return ""
	}
	return spec.Label
}

// displayText returns the overlay text for the active action (or none).
func displayText(a Action) string {
	spec, ok := actionRegistry[kindOf(a)]
	if !ok {
		return noActionDisplay
	}
	return spec.Display(a)
}
