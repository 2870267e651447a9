// Package notify turns scheduler events into outside signals: Telegram
// messages for failed (or optionally all) runs, and sd_notify status lines
// for systemd.
package notify
