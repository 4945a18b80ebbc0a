package uaparse

import "github.com/mssola/useragent"

// Device type tokens, also used as targeting rule keys.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceBot     = "bot"

	Unknown = "Unknown"
)

// Agent is the classified form of a raw User-Agent string.
type Agent struct {
	Browser string
	OS      string
	Device  string
	Bot     bool
}

// Classify parses a raw User-Agent string into browser, OS and device class.
// An empty string yields Unknown fields and is not treated as a bot.
func Classify(uaString string) Agent {
	if uaString == "" {
		return Agent{Browser: Unknown, OS: Unknown, Device: Unknown}
	}

	ua := useragent.New(uaString)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = Unknown
	}

	os := ua.OS()
	if os == "" {
		os = Unknown
	}

	agent := Agent{Browser: browser, OS: os, Device: DeviceDesktop, Bot: ua.Bot()}
	switch {
	case agent.Bot:
		agent.Device = DeviceBot
	case ua.Mobile():
		agent.Device = DeviceMobile
	}

	return agent
}

// IsBot reports whether the User-Agent belongs to an automated crawler.
func IsBot(uaString string) bool {
	if uaString == "" {
		return false
	}

	return useragent.New(uaString).Bot()
}
