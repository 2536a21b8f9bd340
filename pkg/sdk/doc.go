// Package kbase is an in-process Go client for the kbase knowledge base:
// per-project document ingestion (files, typed text, web pages) and
// embedding-based passage retrieval.
//
//	client, _ := kbase.New(ctx,
//	    kbase.WithRedis("localhost:6379", ""),
//	    kbase.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	docs := client.Documents("support")
//	res, _ := docs.Upload(ctx, "faq.pdf", data)
//	if !res.Embedded {
//	    // stored, but not searchable until Reembed succeeds
//	}
//
//	hits, _ := client.Search("support").Query(ctx, "how do I reset my password",
//	    kbase.WithTopK(5),
//	)
//	prompt := hits.Context
//
// Documents whose embedding fails are kept and can be retried with
// DocumentService.Reembed.
package kbase
