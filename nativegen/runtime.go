// Copyright 2026 The go-shroud Authors
// This file is part of go-shroud.
//
// go-shroud is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-shroud is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-shroud. If not, see <http://www.gnu.org/licenses/>.

package nativegen

// RuntimeHeader is the support header every generated translation unit
// includes. It carries the local-reference tracking set, the double-checked
// class cache, the clinit forcing helper, and the micro-VM entry point. The
// cache discipline mirrors the invariants the emitter relies on: one mutex
// and one atomic flag per class slot, promotion to a global reference
// exactly once, and no C++ lock held across a JNI call that can enter a
// Java monitor.
const RuntimeHeader = `// Generated by shroud-protect. Do not edit.
#ifndef SHROUD_RUNTIME_HPP
#define SHROUD_RUNTIME_HPP

#include <jni.h>
#include <atomic>
#include <cstdint>
#include <cstring>
#include <mutex>
#include <vector>

namespace shroud {

// Tracks local references created while a protected method runs. Every exit
// path drains the set, so JNI locals cannot leak past the native frame.
class RefSet {
public:
    explicit RefSet(JNIEnv *env) : env_(env) {}
    ~RefSet() { release(); }

    void track(jobject ref) {
        if (ref != nullptr) refs_.push_back(ref);
    }
    void forget(jobject ref) {
        for (auto it = refs_.rbegin(); it != refs_.rend(); ++it) {
            if (*it == ref) { refs_.erase(std::next(it).base()); return; }
        }
    }
    void release() {
        for (auto it = refs_.rbegin(); it != refs_.rend(); ++it)
            env_->DeleteLocalRef(*it);
        refs_.clear();
    }

private:
    JNIEnv *env_;
    std::vector<jobject> refs_;
};

// One lazily initialised class slot. The fast path is an acquire flag read;
// resolution happens under the slot mutex, and the mutex is released before
// any call that can block inside the VM.
struct ClassSlot {
    std::mutex mtx;
    std::atomic<bool> ready{false};
    jclass ref{nullptr};
    std::atomic<bool> clinit_done{false};
};

// Resolves the slot's class by name through the loader captured at
// registration, promotes it to a global reference once, and caches it.
jclass resolve_class(JNIEnv *env, ClassSlot *slot, const char *name);

// Runs the class's static initialisation if it has not run yet.
void ensure_clinit(JNIEnv *env, ClassSlot *slot, jclass cls);

// Captures the defining loader of the host class; fatal when unavailable,
// because nothing can be resolved without it.
void capture_loader(JNIEnv *env, jclass host);

// Bit-exact constant materialisation and the saturating JVM narrowing
// conversions, kept out of line so the emitted cases stay readable.
static inline jfloat bits_to_float(uint32_t b) { jfloat f; std::memcpy(&f, &b, 4); return f; }
static inline jdouble bits_to_double(uint64_t b) { jdouble d; std::memcpy(&d, &b, 8); return d; }
jint f2i(jfloat v);
jlong f2l(jfloat v);
jint d2i(jdouble v);
jlong d2l(jdouble v);

// Throws the named runtime exceptions through the host VM.
void throw_npe(JNIEnv *env);
void throw_cce(JNIEnv *env, const char *name);

// Allocates a rectangular multi-dimensional array for MULTIANEWARRAY.
jobject multi_array(JNIEnv *env, const char *desc, const jint *dims, int ndims);

// Decodes a keystreamed, compressed program image and interprets it.
// args follow the Java calling convention of the protected method; the
// result, when the method returns a value, is stored through ret.
void vm_invoke(JNIEnv *env, jclass host,
               const uint8_t *image, size_t image_len,
               const uint8_t *key, size_t key_len,
               jvalue *args, int nargs, jvalue *ret);

} // namespace shroud

#define SHROUD_EXC_CHECK(env, target) \
    do { if ((env)->ExceptionCheck()) goto target; } while (0)

#endif // SHROUD_RUNTIME_HPP
`
