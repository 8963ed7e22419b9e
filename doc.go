// Package storage provides a client for Tigris and other S3-compatible object
// storage.
//
// The Client wraps the AWS SDK v2 with the operations applications need from a
// bucket: storing objects (optionally in parallel parts), reading them back as
// bytes, strings or streams, listing, removing, presigning URLs, and bucket
// management. It also acts as the server side of browser and CLI uploads:
// InitMultipartUpload, GetPartsPresignedURLs and CompleteMultipartUpload hand out
// presigned URLs so the payload itself never passes through the application.
//
// Configuration is read from the environment (see package config) and can be
// overridden with functional options:
//
//	client, err := storage.New(ctx,
//	    storage.WithBucket("media"),
//	    storage.WithAccessKeypair(keyID, secret),
//	)
//	if err != nil {
//	    return err
//	}
//
//	res, err := client.Put(ctx, "avatars/cat.png", file, &storagetypes.PutOptions{
//	    Access:          storagetypes.AccessPublic,
//	    AddRandomSuffix: true,
//	})
//
// Errors returned by the client are *errors.Error values carrying the failed
// operation, bucket and key; use errors.Is with the sentinels in package errors
// to branch on the failure kind.
package storage
