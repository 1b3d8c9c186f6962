// Package referrers maps referrer hostnames to display names and channels.
package referrers

import "strings"

// Channels group referrers for the dashboard's source breakdown.
const (
	ChannelDirect    = "direct"
	ChannelSearch    = "search"
	ChannelSocial    = "social"
	ChannelCommunity = "community"
	ChannelNews      = "news"
	ChannelEmail     = "email"
	ChannelOther     = "other"
)

type source struct {
	name    string
	channel string
}

var known = map[string]source{
	"google.com":     {"Google", ChannelSearch},
	"google.co.uk":   {"Google", ChannelSearch},
	"google.de":      {"Google", ChannelSearch},
	"google.fr":      {"Google", ChannelSearch},
	"google.es":      {"Google", ChannelSearch},
	"google.ca":      {"Google", ChannelSearch},
	"google.com.au":  {"Google", ChannelSearch},
	"bing.com":       {"Bing", ChannelSearch},
	"duckduckgo.com": {"DuckDuckGo", ChannelSearch},
	"yahoo.com":      {"Yahoo", ChannelSearch},
	"baidu.com":      {"Baidu", ChannelSearch},
	"yandex.ru":      {"Yandex", ChannelSearch},
	"ecosia.org":     {"Ecosia", ChannelSearch},
	"kagi.com":       {"Kagi", ChannelSearch},
	"perplexity.ai":  {"Perplexity", ChannelSearch},
	"chatgpt.com":    {"ChatGPT", ChannelSearch},

	"x.com":           {"X/Twitter", ChannelSocial},
	"twitter.com":     {"X/Twitter", ChannelSocial},
	"t.co":            {"X/Twitter", ChannelSocial},
	"facebook.com":    {"Facebook", ChannelSocial},
	"l.facebook.com":  {"Facebook", ChannelSocial},
	"instagram.com":   {"Instagram", ChannelSocial},
	"linkedin.com":    {"LinkedIn", ChannelSocial},
	"lnkd.in":         {"LinkedIn", ChannelSocial},
	"threads.net":     {"Threads", ChannelSocial},
	"bsky.app":        {"Bluesky", ChannelSocial},
	"mastodon.social": {"Mastodon", ChannelSocial},
	"youtube.com":     {"YouTube", ChannelSocial},
	"youtu.be":        {"YouTube", ChannelSocial},
	"pinterest.com":   {"Pinterest", ChannelSocial},

	"news.ycombinator.com": {"Hacker News", ChannelCommunity},
	"lobste.rs":            {"Lobsters", ChannelCommunity},
	"reddit.com":           {"Reddit", ChannelCommunity},
	"old.reddit.com":       {"Reddit", ChannelCommunity},
	"dev.to":               {"DEV Community", ChannelCommunity},
	"github.com":           {"GitHub", ChannelCommunity},
	"stackoverflow.com":    {"Stack Overflow", ChannelCommunity},
	"producthunt.com":      {"Product Hunt", ChannelCommunity},

	"medium.com":      {"Medium", ChannelNews},
	"substack.com":    {"Substack", ChannelNews},
	"theverge.com":    {"The Verge", ChannelNews},
	"arstechnica.com": {"Ars Technica", ChannelNews},
	"theguardian.com": {"The Guardian", ChannelNews},
	"bbc.co.uk":       {"BBC", ChannelNews},
	"nytimes.com":     {"NY Times", ChannelNews},

	"mail.google.com":  {"Gmail", ChannelEmail},
	"outlook.live.com": {"Outlook", ChannelEmail},
	"mail.yahoo.com":   {"Yahoo Mail", ChannelEmail},
	"mail.proton.me":   {"Proton Mail", ChannelEmail},
}

func lookup(hostname string) (string, source, bool) {
	hostname = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hostname)), "www.")

	if s, ok := known[hostname]; ok {
		return hostname, s, true
	}

	// Longest matching parent domain wins so mail.google.com beats google.com.
	var (
		best    source
		bestLen int
	)
	for domain, s := range known {
		if strings.HasSuffix(hostname, "."+domain) && len(domain) > bestLen {
			best, bestLen = s, len(domain)
		}
	}
	return hostname, best, bestLen > 0
}

// FriendlyName returns a display name for a referrer hostname. Unknown hosts
// come back without "www." and with the first letter upper-cased. An empty
// hostname is direct traffic.
func FriendlyName(hostname string) string {
	host, s, ok := lookup(hostname)
	if ok {
		return s.name
	}
	if host == "" || host == ChannelDirect {
		return "Direct"
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

// Channel classifies a referrer hostname.
func Channel(hostname string) string {
	host, s, ok := lookup(hostname)
	if ok {
		return s.channel
	}
	if host == "" || host == ChannelDirect {
		return ChannelDirect
	}
	return ChannelOther
}
