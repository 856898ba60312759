package checker

import (
	"fmt"
	"strings"

	"staywatch/models"
)

// agodaChannelID is Agoda's fixed affiliate/channel id carried on every
// check URL.
const agodaChannelID = "1890020"

// BuildAccommodationURL appends the platform-specific stay parameters to
// the listing's source URL: check-in/out as ISO dates, guest count, and
// for Agoda additionally length of stay, room count, and the channel id.
func BuildAccommodationURL(acc *models.Accommodation) string {
	sep := "?"
	if strings.Contains(acc.URL, "?") {
		sep = "&"
	}

	checkIn := acc.CheckIn.Format("2006-01-02")
	checkOut := acc.CheckOut.Format("2006-01-02")
	guests := acc.Guests
	if guests < 1 {
		guests = 1
	}

	switch acc.Platform {
	case models.PlatformAgoda:
		return fmt.Sprintf("%s%scheckIn=%s&los=%d&adults=%d&rooms=1&cid=%s",
			acc.URL, sep, checkIn, acc.Nights(), guests, agodaChannelID)
	default:
		return fmt.Sprintf("%s%scheck_in=%s&check_out=%s&adults=%d&guests=%d",
			acc.URL, sep, checkIn, checkOut, guests, guests)
	}
}
