package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/budget-tracker/internal/infra/bigquery"
)

// TransactionToNotionProperties converts a persisted transaction to
// Notion page properties. "Message ID" is the export dedup key: the
// sync never creates a second page for the same source message.
func TransactionToNotionProperties(tx *bigquery.TransactionRow) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.Name,
					},
				},
			},
		},
		"Message ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.MessageID,
					},
				},
			},
		},
		"Date": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(time.Date(
						tx.TransactionDate.Year,
						time.Month(tx.TransactionDate.Month),
						tx.TransactionDate.Day,
						0, 0, 0, 0, time.UTC,
					))
					return &d
				}(),
			},
		},
	}

	if tx.Amount != nil {
		amount, _ := tx.Amount.Float64()
		props["Amount"] = notionapi.NumberProperty{
			Number: amount,
		}
	}

	if tx.Currency != "" {
		props["Currency"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Currency,
			},
		}
	}

	if tx.Merchant.Valid && tx.Merchant.StringVal != "" {
		props["Merchant"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.Merchant.StringVal,
					},
				},
			},
		}
	}

	if tx.Category.Valid && tx.Category.StringVal != "" {
		props["Category"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Category.StringVal,
			},
		}
	}

	if tx.Source != "" {
		props["Source"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Source,
			},
		}
	}

	return props
}

// extractMessageID extracts the message ID from a Notion page's properties.
// Returns empty string if not found.
func extractMessageID(page notionapi.Page) string {
	if prop, ok := page.Properties["Message ID"]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}
