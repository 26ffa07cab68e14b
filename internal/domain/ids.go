package domain

import "github.com/google/uuid"

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pageqa/document"))

// ContentID derives a document ID from its content, so identical text always
// maps to the same stored document.
func ContentID(content string) string {
	return uuid.NewSHA1(documentNamespace, []byte(content)).String()
}
