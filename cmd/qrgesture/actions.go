package main

// ============================================================================
// Action Types - Classified QR Intents
// ============================================================================
// An Action is the typed intent derived from a decoded QR payload. Exactly one
// variant is active at a time (or none, represented by a nil Action). The
// variant alone selects the button label and the handler that runs on press.
// ============================================================================

// ActionKind identifies an Action variant.
type ActionKind string

const (
	KindWifiJoin      ActionKind = "wifi_join"
	KindContact       ActionKind = "contact"
	KindCalendarEvent ActionKind = "calendar_event"
	KindEmail         ActionKind = "email"
	KindSMS           ActionKind = "sms"
	KindGeo           ActionKind = "geo"
	KindSocialProfile ActionKind = "social_profile"
	KindLink          ActionKind = "link"
	KindPlainText     ActionKind = "plain_text"
)

// Action is a sealed interface; only the variants below implement it.
type Action interface {
	Kind() ActionKind
	actionMarker()
}

// WifiJoin is a WIFI: payload (network credentials).
type WifiJoin struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	AuthType string `json:"auth_type"`
	Hidden   bool   `json:"hidden"`
}

func (WifiJoin) Kind() ActionKind { return KindWifiJoin }
func (WifiJoin) actionMarker()    {}

// Contact carries a vCard document verbatim.
type Contact struct {
	VCard string `json:"vcard"`
}

func (Contact) Kind() ActionKind { return KindContact }
func (Contact) actionMarker()    {}

// CalendarEvent carries an iCalendar VEVENT document verbatim.
type CalendarEvent struct {
	ICal string `json:"ical"`
}

func (CalendarEvent) Kind() ActionKind { return KindCalendarEvent }
func (CalendarEvent) actionMarker()    {}

// Email carries the full mailto: URI.
type Email struct {
	MailtoURI string `json:"mailto_uri"`
}

func (Email) Kind() ActionKind { return KindEmail }
func (Email) actionMarker()    {}

// SMS is a smsto: payload split into phone number and message.
type SMS struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (SMS) Kind() ActionKind { return KindSMS }
func (SMS) actionMarker()    {}

// Geo is a geo: payload. Coordinates are kept as the raw strings from the code.
type Geo struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

func (Geo) Kind() ActionKind { return KindGeo }
func (Geo) actionMarker()    {}

// Complete reports whether both coordinates are present.
// A geo: payload without a comma classifies with an empty longitude; such a
// location is never opened.
func (g Geo) Complete() bool {
	return g.Latitude != "" && g.Longitude != ""
}

// SocialProfile is a URL pointing at a known social network.
type SocialProfile struct {
	URL string `json:"url"`
}

func (SocialProfile) Kind() ActionKind { return KindSocialProfile }
func (SocialProfile) actionMarker()    {}

// Link is a generic http(s) URL.
type Link struct {
	URL string `json:"url"`
}

func (Link) Kind() ActionKind { return KindLink }
func (Link) actionMarker()    {}

// PlainText is anything that matched no other rule.
type PlainText struct {
	Text string `json:"text"`
}

func (PlainText) Kind() ActionKind { return KindPlainText }
func (PlainText) actionMarker()    {}

// kindOf returns the kind of a (possibly nil) action, or "" for none.
func kindOf(a Action) ActionKind {
	if a == nil {
		return ""
	}
	return a.Kind()
}
