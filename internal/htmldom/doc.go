// Package htmldom is a lenient, streaming HTML tokenizer that builds a
// node tree and reports open and close events while it parses, together
// with a small selector language for querying the tree.
//
// The tokenizer is a byte driven state machine. It tolerates malformed
// markup: end tags close the nearest matching ancestor, unknown end tags
// are dropped, and an attribute value with a missing closing quote gives
// up on the tag instead of swallowing the rest of the page. Script bodies
// are captured verbatim up to a case-insensitive </script>.
//
// # Usage
//
//	doc := htmldom.NewDocument(
//	    htmldom.WithNodeHandler(func(s htmldom.Stage, n *htmldom.Node) {
//	        if s == htmldom.TagOpen && n.Is("a") {
//	            fmt.Println(n.Attr("href"))
//	        }
//	    }),
//	)
//	doc.Append(body)
//
//	for _, li := range doc.Root.Find(htmldom.MustCompile("ul li:last")) {
//	    fmt.Println(li.PlainText())
//	}
package htmldom
