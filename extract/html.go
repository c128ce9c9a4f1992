package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Selectors for legacy server-rendered review markup, kept as ordered
// fallback chains like the structured field aliases.
var (
	starTitleRegex = regexp.MustCompile(`(\d+) stars?`)
	firstIntRegex  = regexp.MustCompile(`(\d+)`)
	userShowRegex  = regexp.MustCompile(`/user/show/(\d+)`)
)

const reviewShowURL = "https://www.goodreads.com/review/show/"

// htmlReviews parses legacy review markup out of the rendered page. It only
// runs when no structured-data strategy yielded a record.
func htmlReviews(doc *goquery.Document) []models.ReviewRecord {
	var records []models.ReviewRecord

	doc.Find("div.review, tr.review").Each(func(_ int, sel *goquery.Selection) {
		record := models.ReviewRecord{}

		text := sel.Find("span.readable span").First()
		if text.Length() == 0 {
			text = sel.Find("div.reviewText span").First()
		}
		if text.Length() == 0 {
			text = sel.Find("div.reviewText").First()
		}
		record.Text = strings.TrimSpace(text.Text())

		record.Rating = htmlRating(sel)
		record.ReviewerID, record.ReviewerName = htmlReviewer(sel)

		votes := sel.Find("span.likesCount").First()
		if votes.Length() == 0 {
			votes = sel.Find("span.likeReview").First()
		}
		record.Upvotes = firstInt(votes.Text())

		date := sel.Find("a.reviewDate").First()
		if date.Length() == 0 {
			date = sel.Find("span.reviewDate").First()
		}
		record.CreatedAt = NormalizeTimestamp(strings.TrimSpace(date.Text()))

		if href, ok := sel.Find("a.reviewDate").First().Attr("href"); ok && href != "" {
			record.URL = absoluteReviewURL(href)
		} else if id, ok := sel.Attr("id"); ok && id != "" {
			record.URL = reviewShowURL + strings.TrimPrefix(id, "review_")
		}

		record.Shelves = htmlShelves(sel)
		record.CommentCount = htmlCommentCount(sel)

		if record.Text == "" && !record.HasRating() {
			return
		}
		if record.ReviewerID == "" {
			record.ReviewerID = fmt.Sprintf("unknown_%d", len(records))
		}
		records = append(records, record)
	})

	return records
}

// htmlRating reads the static-stars element: the title attribute first,
// then the p<N> class convention (N is rating*10), then counting star
// glyphs.
func htmlRating(sel *goquery.Selection) int {
	stars := sel.Find("span.staticStars").First()
	if stars.Length() == 0 {
		return 0
	}

	if title, ok := stars.Attr("title"); ok {
		if groups := starTitleRegex.FindStringSubmatch(title); len(groups) == 2 {
			if rating, err := strconv.Atoi(groups[1]); err == nil && rating >= 1 && rating <= 5 {
				return rating
			}
		}
	}

	if class, ok := stars.Attr("class"); ok {
		for _, cls := range strings.Fields(class) {
			if len(cls) < 2 || cls[0] != 'p' {
				continue
			}
			if tenths, err := strconv.Atoi(cls[1:]); err == nil && tenths%10 == 0 {
				if rating := tenths / 10; rating >= 1 && rating <= 5 {
					return rating
				}
			}
		}
	}

	if glyphs := strings.Count(stars.Text(), "★"); glyphs >= 1 && glyphs <= 5 {
		return glyphs
	}
	return 0
}

func htmlReviewer(sel *goquery.Selection) (id, name string) {
	reviewer := sel.Find("a.user").First()
	if reviewer.Length() == 0 {
		reviewer = sel.Find("a.reviewerName").First()
	}
	if reviewer.Length() == 0 {
		return "", ""
	}

	if href, ok := reviewer.Attr("href"); ok {
		if groups := userShowRegex.FindStringSubmatch(href); len(groups) == 2 {
			id = groups[1]
		}
	}
	return id, strings.TrimSpace(reviewer.Text())
}

func htmlShelves(sel *goquery.Selection) []string {
	var shelves []string
	links := sel.Find("a.actionLinkLite.bookPageGenreLink")
	if links.Length() > 0 {
		links.Each(func(_ int, link *goquery.Selection) {
			if name := strings.TrimSpace(link.Text()); name != "" {
				shelves = append(shelves, name)
			}
		})
		return shelves
	}

	block := sel.Find("div.shelves").First()
	if block.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(block.Text())
	text = strings.TrimSpace(strings.TrimPrefix(text, "Shelves:"))
	for _, name := range strings.Split(text, ",") {
		if name = strings.TrimSpace(name); name != "" {
			shelves = append(shelves, name)
		}
	}
	return shelves
}

func absoluteReviewURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return "https://www.goodreads.com" + href
}

func htmlCommentCount(sel *goquery.Selection) int {
	comments := sel.Find("span.commentsCount").First()
	if comments.Length() == 0 {
		comments = sel.Find("span.commentCount").First()
	}
	return firstInt(comments.Text())
}

// paginationAnchorMax returns the highest page number among pagination
// anchors, 0 when the page renders none.
func paginationAnchorMax(doc *goquery.Document) int {
	highest := 0
	doc.Find(".pagination a").Each(func(_ int, link *goquery.Selection) {
		if page, err := strconv.Atoi(strings.TrimSpace(link.Text())); err == nil && page > highest {
			highest = page
		}
	})
	return highest
}

func firstInt(s string) int {
	groups := firstIntRegex.FindStringSubmatch(s)
	if len(groups) != 2 {
		return 0
	}
	value, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0
	}
	return value
}
