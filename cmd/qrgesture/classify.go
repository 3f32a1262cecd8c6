package main

import (
	"strings"
	"unicode/utf8"
)

// socialDomains are matched as plain substrings anywhere in the payload.
var socialDomains = []string{
	"instagram.com",
	"twitter.com",
	"facebook.com",
	"linkedin.com",
	"tiktok.com",
}

// Classify turns a decoded QR payload into an Action.
//
// Rules are evaluated in a fixed priority order and the first match wins,
// because a payload can satisfy several of the weaker rules (an https URL on
// instagram.com is both a social profile and a link).
//
// Classify is pure and never panics. It returns a *ClassifyError only when
// the payload is unusable as a whole (empty or not valid UTF-8); malformed
// fields inside a recognized payload degrade to best-effort values.
func Classify(raw string) (Action, error) {
	if raw == "" {
		return nil, &ClassifyError{Payload: raw, Reason: "empty payload"}
	}
	if !utf8.ValidString(raw) {
		return nil, &ClassifyError{Payload: raw, Reason: "payload is not valid UTF-8"}
	}

	switch {
	case strings.HasPrefix(raw, "WIFI:"):
		return parseWifi(raw), nil
	case strings.HasPrefix(raw, "BEGIN:VCARD"):
		return Contact{VCard: raw}, nil
	case strings.HasPrefix(raw, "BEGIN:VEVENT"):
		return CalendarEvent{ICal: raw}, nil
	case strings.HasPrefix(raw, "mailto:"):
		return Email{MailtoURI: raw}, nil
	case strings.HasPrefix(raw, "smsto:"):
		return parseSMS(raw), nil
	case strings.HasPrefix(raw, "geo:"):
		return parseGeo(raw), nil
	case isSocialProfile(raw):
		return SocialProfile{URL: raw}, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return Link{URL: raw}, nil
	default:
		return PlainText{Text: raw}, nil
	}
}

// parseWifi parses WIFI:T:WPA;S:ssid;P:password;H:false;;
// Missing fields stay empty/false and unknown segments are ignored.
func parseWifi(raw string) WifiJoin {
	var w WifiJoin

	body := strings.TrimPrefix(raw, "WIFI:")
	body = strings.TrimSuffix(body, ";")

	for _, part := range strings.Split(body, ";") {
		switch {
		case strings.HasPrefix(part, "S:"):
			w.SSID = part[2:]
		case strings.HasPrefix(part, "P:"):
			w.Password = part[2:]
		case strings.HasPrefix(part, "T:"):
			w.AuthType = part[2:]
		case strings.HasPrefix(part, "H:"):
			w.Hidden = strings.EqualFold(part[2:], "true")
		}
	}
	return w
}

// parseSMS splits smsto:+15551234:message on the first colon after the prefix.
func parseSMS(raw string) SMS {
	body := strings.TrimPrefix(raw, "smsto:")
	phone, message, _ := strings.Cut(body, ":")
	return SMS{Phone: phone, Message: message}
}

// parseGeo splits geo:lat,lon. A missing comma leaves Longitude empty; see Geo.Complete.
func parseGeo(raw string) Geo {
	body := strings.TrimPrefix(raw, "geo:")
	parts := strings.Split(body, ",")
	g := Geo{Latitude: parts[0]}
	if len(parts) > 1 {
		g.Longitude = parts[1]
	}
	return g
}

func isSocialProfile(raw string) bool {
	for _, d := range socialDomains {
		if strings.Contains(raw, d) {
			return true
		}
	}
	return false
}
