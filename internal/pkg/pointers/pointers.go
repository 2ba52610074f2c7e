package pointers

func Float64(v float64) *float64 { return &v }
func String(v string) *string    { return &v }
