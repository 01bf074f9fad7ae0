package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("")
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different inputs share a digest")
	}
}

func TestMatches(t *testing.T) {
	data := []byte("42\n")
	if !Matches(data, Sum(data)) {
		t.Error("Matches should accept its own digest")
	}
	if Matches(data, Sum([]byte("43\n"))) || Matches(data, "") {
		t.Error("Matches accepted a foreign digest")
	}
}
