// Package browser is the crawler's only contact with a real browser.
//
// Transport and Session describe the minimal capability the crawl needs:
// open a session, navigate, read the DOM, close. ChromeTransport implements
// it with chromedp against a local or remote Chrome. Pool bounds and reuses
// sessions, and Fetcher turns one navigation into a FetchResult under a hard
// timeout, classifying failures as transient (ErrFetchTimeout, ErrTransport)
// so the scheduler can retry them.
package browser
