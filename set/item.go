package set

// Interface for an item storeable in the set
type Item interface {
	Key() string
	Value() interface{}
}

type item struct {
	key   string
	value interface{}
}

// Itemize wraps any value with a key, making it storeable in the set.
func Itemize(key string, value interface{}) Item {
	return &item{key, value}
}

func (item *item) Key() string {
	return item.key
}

func (item *item) Value() interface{} {
	return item.value
}
