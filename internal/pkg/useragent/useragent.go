// Package useragent classifies User-Agent headers into coarse device, browser
// and OS labels and flags automated traffic.
package useragent

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// Unknown is returned when no pattern matches.
const Unknown = "Unknown"

//go:embed patterns.yml
var patternsFile []byte

// Classification is the coarse result of parsing a User-Agent.
type Classification struct {
	DeviceType string
	Browser    string
	OS         string
	IsBot      bool
}

type namedPattern struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type devicePattern struct {
	Regex string `yaml:"regex"`
	Type  string `yaml:"type"`
}

type patternSet struct {
	Bots     []namedPattern  `yaml:"bots"`
	Browsers []namedPattern  `yaml:"browsers"`
	OS       []namedPattern  `yaml:"os"`
	Devices  []devicePattern `yaml:"devices"`
}

type regexCache struct {
	mu       sync.RWMutex
	compiled map[string]*pcre.Regexp
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mu.RLock()
	re, ok := rc.compiled[pattern]
	rc.mu.RUnlock()
	if ok {
		return re, nil
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if re, ok := rc.compiled[pattern]; ok {
		return re, nil
	}
	re, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = re
	return re, nil
}

// Parser matches User-Agents against a pattern set. It is safe for
// concurrent use.
type Parser struct {
	patterns patternSet
	cache    *regexCache
}

// NewParser builds a parser from YAML with bots, browsers, os and devices lists.
func NewParser(data []byte) (*Parser, error) {
	var set patternSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse user agent patterns: %w", err)
	}

	p := &Parser{
		patterns: set,
		cache:    &regexCache{compiled: make(map[string]*pcre.Regexp)},
	}

	// Compile everything up front so a bad pattern fails loudly here
	// instead of silently never matching.
	for _, pattern := range p.allPatterns() {
		if _, err := p.cache.get(pattern); err != nil {
			return nil, fmt.Errorf("invalid user agent pattern %q: %w", pattern, err)
		}
	}
	return p, nil
}

func (p *Parser) allPatterns() []string {
	var all []string
	for _, list := range [][]namedPattern{p.patterns.Bots, p.patterns.Browsers, p.patterns.OS} {
		for _, entry := range list {
			all = append(all, entry.Regex)
		}
	}
	for _, entry := range p.patterns.Devices {
		all = append(all, entry.Regex)
	}
	return all
}

func (p *Parser) firstMatch(list []namedPattern, ua string) (string, bool) {
	for _, entry := range list {
		re, err := p.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		if re.MatchString(ua) {
			return entry.Name, true
		}
	}
	return "", false
}

func (p *Parser) device(ua string) string {
	for _, entry := range p.patterns.Devices {
		re, err := p.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		if re.MatchString(ua) {
			return entry.Type
		}
	}
	return DeviceDesktop
}

// Classify parses ua. An empty User-Agent is treated as a bot since every
// real browser sends one.
func (p *Parser) Classify(ua string) Classification {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Classification{DeviceType: DeviceBot, Browser: Unknown, OS: Unknown, IsBot: true}
	}

	if name, ok := p.firstMatch(p.patterns.Bots, ua); ok {
		return Classification{DeviceType: DeviceBot, Browser: name, OS: Unknown, IsBot: true}
	}

	browser, ok := p.firstMatch(p.patterns.Browsers, ua)
	if !ok {
		browser = Unknown
	}
	os, ok := p.firstMatch(p.patterns.OS, ua)
	if !ok {
		os = Unknown
	}

	return Classification{
		DeviceType: p.device(ua),
		Browser:    browser,
		OS:         os,
	}
}

var (
	defaultParser *Parser
	defaultErr    error
	once          sync.Once
)

func getParser() (*Parser, error) {
	once.Do(func() {
		defaultParser, defaultErr = NewParser(patternsFile)
	})
	return defaultParser, defaultErr
}

// Classify uses the embedded pattern set.
func Classify(ua string) Classification {
	p, err := getParser()
	if err != nil {
		return Classification{DeviceType: DeviceDesktop, Browser: Unknown, OS: Unknown}
	}
	return p.Classify(ua)
}
