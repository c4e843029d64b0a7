package ledgertime

// Clock supplies ledger time to components. Production code uses
// SystemClock; tests inject a manual clock to drive windows and deadlines
// deterministically.
type Clock interface {
	Now() Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() Time {
	return Now()
}
