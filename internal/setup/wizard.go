// Package setup implements the interactive first-run wizard behind
// `attache setup`. It collects credentials, writes the config file,
// and drops a service definition so the daemon survives reboots.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/term"

	"github.com/attachehq/attache/internal/config"
	"github.com/attachehq/attache/internal/persona"
)

// StepResult records the outcome of a single wizard step.
type StepResult struct {
	Step    string `json:"step"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message"`
}

// Result is the outcome of a complete wizard run.
type Result struct {
	Steps []StepResult `json:"steps"`
}

// Prompter abstracts user interaction so the wizard can be tested
// without a terminal.
type Prompter interface {
	// Prompt asks a question and returns the answer with surrounding
	// whitespace trimmed.
	Prompt(question string) (string, error)

	// PromptSecret asks for a value that should not be echoed.
	PromptSecret(question string) (string, error)

	// Confirm asks a yes/no question. An empty answer means no.
	Confirm(question string) (bool, error)
}

// TerminalPrompter reads answers from stdin. Secrets are read without
// echo when stdin is a terminal.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter returns a prompter bound to stdin and stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// Prompt implements Prompter.
func (p *TerminalPrompter) Prompt(question string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptSecret implements Prompter. It falls back to echoed input when
// stdin is not a terminal, e.g. when answers are piped in.
func (p *TerminalPrompter) PromptSecret(question string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return p.Prompt(question)
	}
	fmt.Fprintf(p.out, "%s: ", question)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// Confirm implements Prompter.
func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	return parseYes(line), nil
}

func parseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// Wizard walks the user through creating the config file and a service
// definition. Steps that find existing files skip instead of
// overwriting them.
type Wizard struct {
	configPath string
	prompter   Prompter
	binaryPath string

	cfg     config.Config
	results []StepResult
}

// NewWizard creates a wizard that writes to configPath, or to the
// default location when configPath is empty.
func NewWizard(configPath string, prompter Prompter) *Wizard {
	bin, err := os.Executable()
	if err != nil {
		bin = "attache"
	}
	return &Wizard{configPath: configPath, prompter: prompter, binaryPath: bin}
}

// Run executes all wizard steps in order and returns their results.
func (w *Wizard) Run() (*Result, error) {
	if w.configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		w.configPath = path
	}

	if config.Exists(w.configPath) {
		w.skip("credentials", "config already exists at "+w.configPath)
		w.skip("integrations", "keeping existing settings")
		w.skip("persona", "keeping existing persona")
		w.skip("write_config", "nothing to write")
	} else {
		if err := w.stepCredentials(); err != nil {
			return nil, fmt.Errorf("step credentials: %w", err)
		}
		if err := w.stepIntegrations(); err != nil {
			return nil, fmt.Errorf("step integrations: %w", err)
		}
		if err := w.stepPersona(); err != nil {
			return nil, fmt.Errorf("step persona: %w", err)
		}
		if err := w.stepWriteConfig(); err != nil {
			return nil, fmt.Errorf("step write_config: %w", err)
		}
	}

	if err := w.stepService(); err != nil {
		return nil, fmt.Errorf("step service: %w", err)
	}

	return &Result{Steps: w.results}, nil
}

func (w *Wizard) skip(step, message string) {
	w.results = append(w.results, StepResult{Step: step, Skipped: true, Message: message})
}

func (w *Wizard) done(step, message string) {
	w.results = append(w.results, StepResult{Step: step, Message: message})
}

// stepCredentials collects the required Slack and OpenRouter secrets.
// Blank answers are accepted; the config can be finished by hand or
// through ATTACHE_* environment variables.
func (w *Wizard) stepCredentials() error {
	bot, err := w.prompter.PromptSecret("Slack bot token (xoxb-...)")
	if err != nil {
		return err
	}
	app, err := w.prompter.PromptSecret("Slack app token (xapp-...)")
	if err != nil {
		return err
	}
	key, err := w.prompter.PromptSecret("OpenRouter API key")
	if err != nil {
		return err
	}

	w.cfg.Slack.BotToken = bot
	w.cfg.Slack.AppToken = app
	w.cfg.OpenRouter.APIKey = key

	blank := 0
	for _, v := range []string{bot, app, key} {
		if v == "" {
			blank++
		}
	}
	if blank > 0 {
		w.done("credentials", fmt.Sprintf("collected, %d value(s) left blank to fill in later", blank))
		return nil
	}
	w.done("credentials", "collected Slack and OpenRouter credentials")
	return nil
}

// stepIntegrations asks about each optional service. Declined services
// leave their sections empty and the matching tools report themselves
// as not configured at runtime.
func (w *Wizard) stepIntegrations() error {
	var enabled []string

	ok, err := w.prompter.Confirm("Enable web search and company research? (needs an Exa API key)")
	if err != nil {
		return err
	}
	if ok {
		key, err := w.prompter.PromptSecret("Exa API key")
		if err != nil {
			return err
		}
		w.cfg.Exa.APIKey = key
		enabled = append(enabled, "web search")
	}

	ok, err = w.prompter.Confirm("Enable the knowledge base? (needs a Qdrant instance)")
	if err != nil {
		return err
	}
	if ok {
		url, err := w.prompter.Prompt("Qdrant URL")
		if err != nil {
			return err
		}
		key, err := w.prompter.PromptSecret("Qdrant API key (blank if unsecured)")
		if err != nil {
			return err
		}
		collection, err := w.prompter.Prompt(`Qdrant collection (blank for "knowledge")`)
		if err != nil {
			return err
		}
		w.cfg.Qdrant.URL = url
		w.cfg.Qdrant.APIKey = key
		w.cfg.Qdrant.Collection = collection
		enabled = append(enabled, "knowledge base")
	}

	ok, err = w.prompter.Confirm("Enable the product catalog?")
	if err != nil {
		return err
	}
	if ok {
		url, err := w.prompter.Prompt("Catalog base URL")
		if err != nil {
			return err
		}
		key, err := w.prompter.PromptSecret("Catalog API key")
		if err != nil {
			return err
		}
		w.cfg.Catalog.BaseURL = url
		w.cfg.Catalog.APIKey = key
		enabled = append(enabled, "catalog")
	}

	ok, err = w.prompter.Confirm("Enable image vectorization?")
	if err != nil {
		return err
	}
	if ok {
		url, err := w.prompter.Prompt("Image service base URL")
		if err != nil {
			return err
		}
		key, err := w.prompter.PromptSecret("Image service API key")
		if err != nil {
			return err
		}
		w.cfg.Images.BaseURL = url
		w.cfg.Images.APIKey = key
		enabled = append(enabled, "image vectorization")
	}

	ok, err = w.prompter.Confirm("Enable long-term memory? (needs a Mem0 API key)")
	if err != nil {
		return err
	}
	if ok {
		key, err := w.prompter.PromptSecret("Mem0 API key")
		if err != nil {
			return err
		}
		w.cfg.Mem0.APIKey = key
		enabled = append(enabled, "memory")
	}

	if len(enabled) == 0 {
		w.done("integrations", "none enabled, the matching tools will answer as not configured")
		return nil
	}
	w.done("integrations", "enabled: "+strings.Join(enabled, ", "))
	return nil
}

// stepPersona picks a built-in persona and optional reply identity.
func (w *Wizard) stepPersona() error {
	question := fmt.Sprintf("Persona (%s; blank for assistant)", strings.Join(persona.Names(), ", "))
	name, err := w.prompter.Prompt(question)
	if err != nil {
		return err
	}
	if name != "" {
		if _, ok := persona.Builtin(name); !ok {
			return fmt.Errorf("unknown persona %q (built-in: %s)", name, strings.Join(persona.Names(), ", "))
		}
	}
	w.cfg.Persona = name

	display, err := w.prompter.Prompt("Display name for replies (blank keeps the app name)")
	if err != nil {
		return err
	}
	icon, err := w.prompter.Prompt("Icon emoji for replies, e.g. :briefcase: (blank keeps the app icon)")
	if err != nil {
		return err
	}
	w.cfg.Identity.DisplayName = display
	w.cfg.Identity.IconEmoji = icon

	chosen := name
	if chosen == "" {
		chosen = "assistant"
	}
	w.done("persona", "using the "+chosen+" persona")
	return nil
}

func (w *Wizard) stepWriteConfig() error {
	if err := config.Save(w.configPath, &w.cfg); err != nil {
		return err
	}
	w.done("write_config", "created "+w.configPath)
	return nil
}

// stepService writes a service definition next to the config file so
// the daemon can be installed under systemd or launchd.
func (w *Wizard) stepService() error {
	name := ServiceFileName()
	if name == "" {
		w.skip("service", "no service manager on "+runtime.GOOS+", run the binary directly")
		return nil
	}

	path := filepath.Join(filepath.Dir(w.configPath), name)
	if _, err := os.Stat(path); err == nil {
		w.skip("service", "service definition already exists at "+path)
		return nil
	}

	content := GenerateServiceConfig(w.binaryPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write service definition: %w", err)
	}
	w.done("service", "wrote "+path+" for "+ServiceType())
	return nil
}

// ServiceFileName returns the name of the service definition the wizard
// writes next to the config file, empty when the OS has no supported
// service manager.
func ServiceFileName() string {
	switch ServiceType() {
	case "systemd":
		return "attache.service"
	case "launchd":
		return "com.attachehq.attache.plist"
	}
	return ""
}

// ServiceType returns the service manager for the current OS: launchd
// on macOS, systemd on Linux, manual elsewhere.
func ServiceType() string {
	switch runtime.GOOS {
	case "darwin":
		return "launchd"
	case "linux":
		return "systemd"
	default:
		return "manual"
	}
}

// GenerateServiceConfig renders a service definition that restarts the
// daemon after crashes and reboots.
func GenerateServiceConfig(binaryPath string) string {
	switch ServiceType() {
	case "launchd":
		return generateLaunchAgent(binaryPath)
	case "systemd":
		return generateSystemdUnit(binaryPath)
	default:
		return binaryPath + "\n"
	}
}

func generateSystemdUnit(binaryPath string) string {
	return fmt.Sprintf(`[Unit]
Description=attache Slack assistant
After=network-online.target

[Service]
Type=simple
ExecStart=%s
Restart=always
RestartSec=5

[Install]
WantedBy=default.target
`, binaryPath)
}

func generateLaunchAgent(binaryPath string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.attachehq.attache</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>/tmp/attache.log</string>
    <key>StandardErrorPath</key>
    <string>/tmp/attache.err</string>
</dict>
</plist>
`, binaryPath)
}
