package conversation

import (
	"fmt"

	"golang.org/x/text/language"
)

// Replies renders outbound message texts, picking the closest supported
// locale for the event's language tag.
type Replies struct {
	matcher language.Matcher
}

var supportedLocales = []language.Tag{
	language.English,
	language.Indonesian,
}

// NewReplies creates the reply renderer.
func NewReplies() *Replies {
	return &Replies{matcher: language.NewMatcher(supportedLocales)}
}

// Text renders the message for key in the best-matching locale.
func (r *Replies) Text(lang, key string, args ...any) string {
	locale := "en"
	if lang != "" {
		if tag, _ := language.MatchStrings(r.matcher, lang); tag == language.Indonesian {
			locale = "id"
		}
	}
	msg, ok := messages[locale][key]
	if !ok {
		msg, ok = messages["en"][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

var messages = map[string]map[string]string{
	"en": {
		"help": "I find Solana addresses matching a pattern you choose.\n" +
			"/generate — start a new search\n" +
			"/cancel — cancel your pending search\n" +
			"/queue — show queue occupancy",
		"choose_type": "Should the pattern appear at the start or the end of the address?",
		"ask_pattern": "Send the pattern (1-4 characters, base58: no 0, O, I or l).",
		"invalid_pattern": "That pattern will not work: %s. Try again.",
		"ask_case": "Match case exactly?",
		"already_in_flight": "You already have a search in progress. Cancel it first with /cancel.",
		"queued": "Search queued at position %d. I will reply here when it finishes.",
		"submit_failed": "Could not queue your search right now. Please try again later.",
		"temporary_error": "Something went wrong on my side. Try again in a moment.",
		"result": "Found your address!\n\nAddress: %s\nPrivate key: %s\nAttempts: %d\nTime: %.1fs\n\nKeep the private key secret.",
		"failed": "The search failed: %s\nSubmit a new request with /generate.",
		"await_timeout": "Your search is taking longer than expected. It keeps running; use /cancel to give up on it.",
		"cancelled_removed": "Search cancelled before it started.",
		"cancelled_active": "Your search had already started; I stopped tracking it. You can start a new one right away.",
		"no_active": "You have no search to cancel.",
		"queue_depth": "Queue: %d waiting, %d running.",
		"flush_done": "Cleared %d pending jobs and all trackers.",
		"btn_prefix": "Start (prefix)",
		"btn_suffix": "End (suffix)",
		"btn_yes": "Yes",
		"btn_no": "No",
	},
	"id": {
		"help": "Saya mencari alamat Solana yang cocok dengan pola pilihan Anda.\n" +
			"/generate — mulai pencarian baru\n" +
			"/cancel — batalkan pencarian Anda\n" +
			"/queue — lihat isi antrean",
		"choose_type": "Pola di awal atau di akhir alamat?",
		"ask_pattern": "Kirim polanya (1-4 karakter, base58: tanpa 0, O, I atau l).",
		"invalid_pattern": "Pola itu tidak bisa dipakai: %s. Coba lagi.",
		"ask_case": "Huruf besar/kecil harus sama persis?",
		"already_in_flight": "Anda masih punya pencarian yang berjalan. Batalkan dulu dengan /cancel.",
		"queued": "Pencarian masuk antrean di posisi %d. Saya balas di sini begitu selesai.",
		"submit_failed": "Pencarian tidak bisa diantrekan sekarang. Coba lagi nanti.",
		"temporary_error": "Ada masalah di pihak saya. Coba lagi sebentar lagi.",
		"result": "Alamat ditemukan!\n\nAlamat: %s\nPrivate key: %s\nPercobaan: %d\nWaktu: %.1f dtk\n\nJaga kerahasiaan private key Anda.",
		"failed": "Pencarian gagal: %s\nAjukan permintaan baru dengan /generate.",
		"await_timeout": "Pencarian Anda lebih lama dari perkiraan. Proses tetap berjalan; gunakan /cancel untuk menyerah.",
		"cancelled_removed": "Pencarian dibatalkan sebelum dimulai.",
		"cancelled_active": "Pencarian sudah terlanjur berjalan; saya berhenti melacaknya. Anda bisa langsung mulai yang baru.",
		"no_active": "Tidak ada pencarian untuk dibatalkan.",
		"queue_depth": "Antrean: %d menunggu, %d berjalan.",
		"flush_done": "Membersihkan %d pekerjaan tertunda dan semua pelacak.",
		"btn_prefix": "Awal (prefix)",
		"btn_suffix": "Akhir (suffix)",
		"btn_yes": "Ya",
		"btn_no": "Tidak",
	},
}
