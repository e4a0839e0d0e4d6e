package assert

import "fmt"

// NotNil panics if value is nil, name identifies the value in the panic message.
func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
}

func NotEmptyStr(str, name string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be a non-empty string", name))
	}
}

// True panics with message if cond does not hold.
func True(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
