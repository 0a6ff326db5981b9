package emailcheck

var builtinDisposable = []string{
	"10minutemail.com",
	"discard.email",
	"dispostable.com",
	"fakeinbox.com",
	"getnada.com",
	"guerrillamail.com",
	"guerrillamail.net",
	"mailinator.com",
	"maildrop.cc",
	"mintemail.com",
	"mohmal.com",
	"sharklasers.com",
	"temp-mail.org",
	"tempmail.dev",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}
