// Package password hashes credentials for the email sign-up and sign-in
// routes with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// with unpadded base64 salt and hash. [Hasher.NeedsRehash] reports hashes
// produced with weaker parameters than the current configuration.
package password
