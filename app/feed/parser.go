package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       strings.TrimSpace(feed.Title),
		Link:        feed.Link,
		Description: strings.TrimSpace(feed.Description),
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, p.normalizeItem(item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	contentHTML := cmp.Or(item.Content, item.Description)

	normalized := Item{
		GUID:        itemGUID(item),
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		Author:      p.extractAuthor(item),
		ContentHTML: contentHTML,
		ContentText: HTMLText(contentHTML),
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		normalized.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		normalized.PublishedAt = &updated
	}

	return normalized
}

// itemGUID prefers the feed's own id (gofeed maps Atom <id> to GUID), then
// the link, then a title and date composite.
func itemGUID(item *gofeed.Item) string {
	if guid := cmp.Or(strings.TrimSpace(item.GUID), strings.TrimSpace(item.Link)); guid != "" {
		return guid
	}

	title := cmp.Or(strings.TrimSpace(item.Title), "item")
	date := cmp.Or(item.Published, item.Updated)
	if date == "" {
		date = time.Now().UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s-%s", title, date)
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author != nil {
			if s := p.formatAuthor(author.Name, author.Email); s != "" {
				return s
			}
		}
	}
	if item.Author != nil {
		return p.formatAuthor(item.Author.Name, item.Author.Email)
	}
	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}

// HTMLText returns the whitespace-collapsed text of an HTML fragment.
func HTMLText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return pipeline.NormalizeSpace(fragment)
	}
	return pipeline.NormalizeSpace(doc.Text())
}

// BodyLength is the longer of the item's text and the text of its HTML.
func BodyLength(contentText, contentHTML string) int {
	return max(pipeline.RuneLen(pipeline.NormalizeSpace(contentText)), pipeline.RuneLen(HTMLText(contentHTML)))
}
