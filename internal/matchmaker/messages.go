package matchmaker

import (
	"fmt"

	"github.com/oggyb/anon-relay/internal/domain"
)

// Menu buttons. They are intercepted before relay.
const (
	FindPartnerButton = "🔍 Find Partner"
	MyProfileButton   = "👤 My Profile"
)

var (
	GenderKeyboard = [][]string{{domain.MaleLabel, domain.FemaleLabel}}
	MainKeyboard   = [][]string{{FindPartnerButton, MyProfileButton}}
)

const (
	msgWelcome         = "👋 Welcome to Anonymous Chat!\nChoose your gender first to start meeting new people."
	msgGenderRetry     = "Please choose using the buttons."
	msgMainMenu        = "Use the buttons below to start chatting. 👇"
	msgNotRegistered   = "Please send /start to register first."
	msgSearching       = "🔍 Looking for a partner... please wait..."
	msgWaiting         = "⏳ Waiting for someone to join... we'll let you know when a partner is found."
	msgPartnerFound    = "🎉 Partner found! Say hi.\n/next - find someone else\n/stop - end the chat"
	msgAlreadyChatting = "💬 You are already in a chat. Use /next for a new partner or /stop to end it."
	msgStillSearching  = "🔍 Still searching, please wait."
	msgPromptSearch    = "Tap '" + FindPartnerButton + "' to start chatting."
	msgUnreachable     = "⚠️ Your partner seems to have left the chat. Use /next to find someone new."
	msgPartnerSkipped  = "❌ Your partner skipped this chat.\nUse /search to find someone new."
	msgPartnerStopped  = "❌ Your partner ended the chat."
	msgYouStopped      = "✅ Chat ended."
	msgSearchStopped   = "🛑 Search stopped."
	msgStaleChat       = "ℹ️ Your previous chat has ended."
	msgHelp            = "Commands:\n/search - find a partner\n/next - skip to a new partner\n/stop - end the chat"
)

func msgRegistered(g domain.Gender) string {
	return fmt.Sprintf("✅ Registered! %s", g.Label())
}

func msgProfile(u *domain.User) string {
	return fmt.Sprintf("👤 Name: %s\n⚧ Gender: %s", u.DisplayName, u.Gender.Label())
}

func msgStats(s Stats) string {
	return fmt.Sprintf(
		"📊 Users: %d idle, %d searching, %d chatting\nMatches: %d, ended: %d, relayed: %d, unreachable: %d",
		s.Users[domain.StatusIdle], s.Users[domain.StatusSearching], s.Users[domain.StatusChatting],
		s.Events["matched"], s.Events["ended"], s.Events["relayed"], s.Events["unreachable"],
	)
}
