package politecrawl

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Extract applies the rule set to a document and returns one record per
// matched node. Rules are tried in declaration order; the first rule whose
// selector matches at least one node is used for the page and later rules
// are not consulted, so overlapping selectors never duplicate records.
func (app *Crawler) Extract(doc *goquery.Document, pageUrl string, rules ExtractionRuleSet) ([]Record, error) {
	if doc == nil || len(rules.Rules) == 0 {
		return nil, &ExtractionError{Kind: ExtractionNoMatch, Url: pageUrl}
	}

	for _, rule := range rules.Rules {
		selection := doc.Find(rule.Selector)
		if selection.Length() == 0 {
			continue
		}
		app.Logger.Info("Using selector %q (%d nodes) on %s", rule.Selector, selection.Length(), pageUrl)
		return app.extractWithRule(selection, rule, pageUrl), nil
	}
	return nil, &ExtractionError{Kind: ExtractionNoMatch, Url: pageUrl}
}

func (app *Crawler) extractWithRule(selection *goquery.Selection, rule ExtractionRule, pageUrl string) []Record {
	extractedAt := time.Now().UTC().Format(time.RFC3339)
	var records []Record

	selection.Each(func(i int, node *goquery.Selection) {
		record := Record{}
		for _, field := range rule.Fields {
			value, ok := extractField(node, field)
			if !ok {
				if field.Required {
					app.Logger.Error("%v", &ExtractionError{
						Kind:  ExtractionMissingRequiredField,
						Url:   pageUrl,
						Field: field.Name,
					})
					record = nil
					return
				}
				record[field.Name] = nil
				continue
			}
			record[field.Name] = value
		}
		record["source_url"] = pageUrl
		record["extracted_at"] = extractedAt
		records = append(records, record)
	})

	return records
}

func extractField(node *goquery.Selection, field FieldSelector) (string, bool) {
	target := node
	if field.Selector != "" {
		target = node.Find(field.Selector).First()
	}
	if target.Length() == 0 {
		return "", false
	}
	if field.Attr != "" {
		value, ok := target.Attr(field.Attr)
		if !ok {
			return "", false
		}
		return value, true
	}
	text := cleanText(target.Text())
	if text == "" {
		return "", false
	}
	return text, true
}

var numberedPageRe = regexp.MustCompile(`([?&](?:page|p)=)(\d+)`)

// NextLink discovers the next page of a listing. Strategies are tried in
// order: the explicit next selector, rel="next" links, and finally a
// numbered pagination pattern inferred from the current URL. Returns the
// first resolvable absolute URL, or "".
func (app *Crawler) NextLink(doc *goquery.Document, pageUrl string, rules ExtractionRuleSet) string {
	if doc == nil {
		return inferNumberedNext(pageUrl)
	}

	if rules.NextSelector != "" {
		if href := firstHref(doc.Find(rules.NextSelector)); href != "" {
			return absoluteUrl(pageUrl, href)
		}
	}

	if href := firstHref(doc.Find(`a[rel="next"], link[rel="next"]`)); href != "" {
		return absoluteUrl(pageUrl, href)
	}

	return inferNumberedNext(pageUrl)
}

func firstHref(selection *goquery.Selection) string {
	found := ""
	selection.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if href, ok := s.Attr("href"); ok && href != "" {
			found = href
			return false
		}
		return true
	})
	return found
}

// inferNumberedNext increments a page counter embedded in the URL query,
// e.g. ?page=2 -> ?page=3.
func inferNumberedNext(pageUrl string) string {
	match := numberedPageRe.FindStringSubmatch(pageUrl)
	if match == nil {
		return ""
	}
	current, err := strconv.Atoi(match[2])
	if err != nil {
		return ""
	}
	return numberedPageRe.ReplaceAllString(pageUrl, fmt.Sprintf("${1}%d", current+1))
}
