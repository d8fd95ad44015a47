package escalation

import "crypto/rand"

const codeDigits = 6

// GenerateCode returns a 6-digit numeric validation code (e.g. "042917") from crypto/rand.
// Bytes >= 250 are discarded so every digit is uniform.
func GenerateCode() (string, error) {
	s := make([]byte, 0, codeDigits)
	buf := make([]byte, codeDigits*2)
	for len(s) < codeDigits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == codeDigits {
				break
			}
		}
	}
	return string(s), nil
}

// ValidCode reports whether code has the shape GenerateCode produces.
func ValidCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
