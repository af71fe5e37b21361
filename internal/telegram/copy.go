package telegram

import (
	"fmt"
	"time"
)

const (
	msgWelcome = "Hey %s! I'm Nadia. So happy you found me!\n\nJust talk to me like you would anyone else. You get %d free messages every day, and credits keep the conversation going after that.\n\nCommands:\n/balance - check your credits\n/buy - get more credits\n/gallery - browse my photos\n/help - how everything works"

	msgHelp = "Here's how this works:\n\nYou get %d free messages every day. After that each message costs %d credit.\n\n/balance - see your credits and free messages\n/buy - top up credits\n/gallery - my photo gallery (unlock with credits)\n/notifications - toggle my daily check-ins\n/support - reach a human\n\nThat's it. Now come talk to me!"

	msgSupport = "Need help with a payment or your account? Write to @ItsNadchosSupport and a human will sort it out."

	msgUnknownCommand = "I don't know that one! Try /help to see what I can do."

	msgBlocked = "Your account has been suspended. Contact /support if you think this is a mistake."

	msgRateWarning = "Whoa, slow down a little! Give me a second to breathe and try again in a bit."

	msgTempBlocked = "You're sending messages way too fast, so I'm taking a break. Come back in about an hour."

	msgOutOfCredits = "I'd love to keep talking, but you're out of free messages and credits for now!\n\nGrab some credits and we can pick up right where we left off."

	msgGenerateFailed = "Ugh, my head's a little fuzzy right now. Say that again in a moment?"

	msgPaymentDone = "Payment received! %d credits are on your account. You're the best!"

	msgUnlockDone = "Unlocked! This one's yours forever now."

	msgUnlockShort = "That photo costs %d credits but you only have %d. Top up and it's yours!"

	msgGalleryEmpty = "No photos online right now. Check back soon!"

	msgUpsellTier1 = "I've really loved talking with you... I have some special photos I only share with supporters. Want to see?"

	msgUpsellTier2 = "You've become one of my favorites, you know that? My most personal collection is waiting for you."

	btnBuyCredits  = "Get credits"
	btnViewPacks   = "See packs"
	btnMaybeLater  = "Maybe later"
	btnUnlockPhoto = "Unlock for %d credits"
)

// creditFooter is appended to paid replies so spend stays visible.
func creditFooter(balance int) string {
	return fmt.Sprintf("\n\n(%d credits left)", balance)
}

func freeFooter(remaining int) string {
	if remaining == 1 {
		return "\n\n(1 free message left today)"
	}
	return fmt.Sprintf("\n\n(%d free messages left today)", remaining)
}

const (
	pacingBase    = 800 * time.Millisecond
	pacingPerChar = 25 * time.Millisecond
	pacingMax     = 4 * time.Second
)

// pacingDelay simulates typing time proportional to the reply length so
// responses do not land instantly.
func pacingDelay(text string) time.Duration {
	d := pacingBase + time.Duration(len(text))*pacingPerChar
	if d > pacingMax {
		return pacingMax
	}
	return d
}
