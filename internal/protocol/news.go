package protocol

import "fmt"

// News is one news item. It has no identity beyond its value.
type News struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func (n News) String() string {
	return fmt.Sprintf("Title: %s\nDescription: %s\nContent: %s", n.Title, n.Description, n.Content)
}
