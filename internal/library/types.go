package library

// Resource kinds accepted by the library.
const (
	KindBook    = "book"
	KindArticle = "article"
)

// MaxContentRunes bounds the stored excerpt of a resource.
const MaxContentRunes = 500

// Resource is a book or article excerpt used to enrich generated lessons.
type Resource struct {
	Title   string   `yaml:"title"`
	Author  string   `yaml:"author"`
	Kind    string   `yaml:"kind"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
}

// resourceFile is the YAML document layout: a top-level resources list.
type resourceFile struct {
	Resources []Resource `yaml:"resources"`
}
