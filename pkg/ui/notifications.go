package ui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"talksync/pkg/config"
)

// Notification types accepted in notifications.notification_type
const (
	NotifyTerminal = "terminal"
	NotifyDesktop  = "desktop"
	NotifyBoth     = "both"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=talksync", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("talksync").Show($toast)
	`, psQuote(title), psQuote(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// platformSender returns the desktop sender for the current OS, or nil
func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	}
	return nil
}

// Notifier announces the end of a sync run according to the notification
// settings
type Notifier struct {
	cfg    config.NotificationConfig
	sender NotificationSender
	out    io.Writer
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	return NewNotifierWithSender(cfg, platformSender(), Output)
}

// NewNotifierWithSender creates a Notifier with an explicit desktop sender
// and terminal writer
func NewNotifierWithSender(cfg config.NotificationConfig, sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{cfg: cfg, sender: sender, out: out}
}

func (n *Notifier) terminal() bool {
	t := n.cfg.NotificationType
	return t == "" || t == NotifyTerminal || t == NotifyBoth
}

func (n *Notifier) desktop() bool {
	t := n.cfg.NotificationType
	return n.sender != nil && (t == NotifyDesktop || t == NotifyBoth)
}

func (n *Notifier) send(title, message string, color func(string) string) {
	if !n.cfg.Enabled {
		return
	}
	if n.terminal() {
		fmt.Fprintf(n.out, "\n%s: %s\n", color(title), message)
	}
	if n.desktop() {
		// a missing notify-send must not affect the run
		_ = n.sender.Send(title, message)
	}
}

// SendNotification sends an informational notification
func (n *Notifier) SendNotification(title, message string) {
	n.send(title, message, Cyan)
}

// SendError sends an error notification when on_error is set
func (n *Notifier) SendError(title, message string) {
	if !n.cfg.OnError {
		return
	}
	n.send(title, message, Red)
}

// SendSuccess sends a completion notification when on_complete is set
func (n *Notifier) SendSuccess(title, message string) {
	if !n.cfg.OnComplete {
		return
	}
	n.send(title, message, Green)
}
