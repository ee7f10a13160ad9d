// Package notify tells a shopper that their try-on is ready. It reacts to
// task transitions into completed and delivers a link message through the
// messaging provider the shopper paired with, in the background.
package notify
