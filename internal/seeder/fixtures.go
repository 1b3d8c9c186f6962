package seeder

// Realistic journeys through a personal site.
var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/blog", "/blog/building-a-cms", "/about"},
	{"/blog/building-a-cms"},
	{"/blog/go-concurrency-patterns", "/blog", "/blog/sqlite-in-production"},
	{"/", "/projects", "/projects/sitepulse"},
	{"/projects/sitepulse", "/about"},
	{"/", "/blog", "/blog/go-concurrency-patterns"},
	{"/blog/sqlite-in-production"},
	{"/", "/resume"},
	{"/", "/about", "/projects", "/contact"},
}

var pageTitles = map[string]string{
	"/":                             "Home",
	"/about":                        "About",
	"/contact":                      "Contact",
	"/blog":                         "Blog",
	"/blog/building-a-cms":          "Building a CMS",
	"/blog/go-concurrency-patterns": "Go Concurrency Patterns",
	"/blog/sqlite-in-production":    "SQLite in Production",
	"/projects":                     "Projects",
	"/projects/sitepulse":           "Sitepulse",
	"/resume":                       "Resume",
}

var brokenPaths = []string{
	"/wp-admin",
	"/blog/old-post",
	"/feed.xml",
	"/projects/archived",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
}

var referrerURLs = []string{
	"",
	"",
	"https://www.google.com/",
	"https://duckduckgo.com/",
	"https://news.ycombinator.com/item?id=1",
	"https://www.reddit.com/r/golang/",
	"https://twitter.com/",
	"https://www.linkedin.com/feed/",
	"https://github.com/sitepulse",
	"https://lobste.rs/",
}

var countries = []string{"US", "US", "GB", "DE", "FR", "CA", "NL", "ES", "IN", "BR", ""}
