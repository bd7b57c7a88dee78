package cache

import (
	"fmt"
	"time"
)

const PostKeyPrefix = "post:%d"

// PostTTL bounds how long a cached post detail may lag behind the store.
const PostTTL = 30 * time.Minute

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}
