package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"igprofiler/pkg/session"
)

const notifyTitle = "igprofiler"

// NotificationSender delivers one desktop notification.
type NotificationSender interface {
	Send(title, message string) error
}

// commandSender runs a platform notification tool.
type commandSender struct {
	build func(title, message string) *exec.Cmd
}

func (c commandSender) Send(title, message string) error {
	return c.build(title, message).Run()
}

func notifySend(title, message string) *exec.Cmd {
	return exec.Command("notify-send", "--app-name="+notifyTitle, title, message)
}

func osascript(title, message string) *exec.Cmd {
	script := fmt.Sprintf("display notification %s with title %s", appleQuote(message), appleQuote(title))
	return exec.Command("osascript", "-e", script)
}

// appleQuote renders s as an AppleScript string literal.
func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func powershellToast(title, message string) *exec.Cmd {
	script := fmt.Sprintf(`
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$texts = $template.GetElementsByTagName("text")
$texts.Item(0).AppendChild($template.CreateTextNode(%s)) | Out-Null
$texts.Item(1).AppendChild($template.CreateTextNode(%s)) | Out-Null
$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier(%s).Show($toast)`,
		psQuote(title), psQuote(message), psQuote(notifyTitle))
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

// psQuote renders s as a single-quoted PowerShell string.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Notifier announces finished analyses.
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks the sender for the current platform. Unsupported
// platforms only get the console line.
func NewNotifier() *Notifier {
	n := &Notifier{}
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		n.sender = commandSender{build: notifySend}
	case "darwin":
		n.sender = commandSender{build: osascript}
	case "windows":
		n.sender = commandSender{build: powershellToast}
	}
	return n
}

// NotifySession announces a finished analysis on the desktop and the console.
// Sessions that are still running are ignored.
func (n *Notifier) NotifySession(username string, s session.Session) {
	var msg string
	color := Green
	switch s.Status {
	case session.StatusCompleted:
		msg = fmt.Sprintf("Analysis of @%s complete", username)
	case session.StatusError:
		msg = fmt.Sprintf("Analysis of @%s failed: %s", username, s.Error)
		color = Red
	default:
		return
	}
	fmt.Fprintf(out, "\n%s: %s\n", color(notifyTitle), color(msg))
	n.send(notifyTitle, msg)
}

// send ignores delivery errors; the console line already carries the news.
func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}
