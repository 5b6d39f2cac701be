package config

import (
	"time"
)

type Target struct {
	Host        string        `ini:"host" `
	Port        int           `ini:"port" `
	DialTimeout time.Duration `ini:"dialTimeout"  comment:"TCP connect timeout, default: 5s"`
	ReadTimeout time.Duration `ini:"readTimeout"  comment:"wait for one response line, 0 waits forever, default: 10s"`
	Exec        string        `ini:"exec"  comment:"run a command such as \"nc host port\" instead of dialing"`
}

type Proxy struct {
	Enable bool   `ini:"enable" `
	Type   string `ini:"type"  comment:"socks5"`
	Host   string `ini:"host" `
	Port   string `ini:"port" `
	User   string `ini:"user" `
	Pass   string `ini:"pass" `
}

type Probe struct {
	Interval    time.Duration `ini:"interval"  comment:"pause between payloads, default: 100ms"`
	Template    string        `ini:"template"  comment:"payload template, must contain the placeholder once"`
	Placeholder string        `ini:"placeholder" `
	Alphabet    string        `ini:"alphabet"  comment:"candidates in probing order, one per character; empty uses the built-in alphabet"`
	Phrase      string        `ini:"phrase"  comment:"text that follows the match count in a response"`
}

type Output struct {
	Format string `ini:"format"  comment:"text or jsonl"`
}

type Config struct {
	Version    string
	LogDataDir string `ini:"logDataDir" `
	Target     Target
	Proxy      Proxy `comment:"upstream proxy for tcp sessions"`
	Probe      Probe
	Output     Output
}
